package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `timeStamp,elapsed,label,responseCode,responseMessage,threadName,dataType,success,bytes,grpThreads,allThreads,Latency
1700000000000,120,home,200,OK,thread-1,text,true,1024,1,1,100
1700000000500,980,home,200,OK,thread-1,text,true,2048,1,1,900
1700000001000,50,login,500,Error,thread-1,text,false,512,1,1,40
`

func TestParseJTLReaderDecodesKnownColumns(t *testing.T) {
	samples, err := parseJTLReader(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, samples, 3)

	assert.Equal(t, "home", samples[0].Label)
	assert.Equal(t, 120.0, samples[0].Elapsed)
	assert.True(t, samples[0].Success)
	assert.Equal(t, int64(1024), samples[0].Bytes)

	assert.Equal(t, "login", samples[2].Label)
	assert.False(t, samples[2].Success)
}

func TestParseJTLReaderSkipsMalformedRows(t *testing.T) {
	csv := "timeStamp,elapsed,label,success,bytes\n1,notanumber,home,true,10\n2,15,home,true,20\n"
	samples, err := parseJTLReader(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 15.0, samples[0].Elapsed)
}

func TestParseJTLReaderEmptyFileYieldsNoSamples(t *testing.T) {
	samples, err := parseJTLReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, samples)
}
