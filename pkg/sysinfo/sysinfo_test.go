package sysinfo

import (
	"os"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollect(t *testing.T) {
	info := Collect(Options{})

	assert.False(t, info.Timestamp.IsZero())
	assert.Equal(t, runtime.GOARCH, info.Host.Architecture)
	assert.NotEmpty(t, info.Host.OS)
	assert.Positive(t, info.CPU.LogicalCores)
	assert.Empty(t, info.CPU.Usage)
	assert.Nil(t, info.Disk)
	assert.Nil(t, info.Network)
	assert.Equal(t, int32(os.Getpid()), info.Process.PID)
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{16 << 30, "16.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBytes(tt.n))
	}
}
