package spi

import (
	"errors"
	"testing"
	"time"

	"github.com/mscrnt/pwmbench/pkg/sim"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drive is one write to the control input
type drive struct {
	tick  uint64
	frame Frame
}

// recorder captures every frame driven by the encoder with the tick it was
// driven at
type recorder struct {
	clock  sim.Clock
	drives []drive
}

func (r *recorder) Drive(v uint8) {
	r.drives = append(r.drives, drive{tick: r.clock.Ticks(), frame: Frame(v)})
}

func newTestEncoder() (*Encoder, *sim.Simulator, *recorder) {
	s := sim.New(sim.DefaultPeriod)
	rec := &recorder{clock: s}
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return NewEncoder(s, rec, DefaultConfig(), logger), s, rec
}

func TestTransactionWord(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		want uint16
	}{
		{"write", NewWrite(0x04, 0x80), 0x8480},
		{"read", NewRead(0x30, 0xBE), 0x30BE},
		{"max", NewWrite(0x7F, 0xFF), 0xFFFF},
		{"zero", NewRead(0, 0), 0x0000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.tx.Validate())
			assert.Equal(t, tt.want, tt.tx.Word())
		})
	}
}

func TestFramePacking(t *testing.T) {
	assert.Equal(t, Frame(0b100), IdleFrame)
	f := NewFrame(0, 1, 1)
	assert.Equal(t, uint8(0), f.NCS())
	assert.Equal(t, uint8(1), f.COPI())
	assert.Equal(t, uint8(1), f.SCLK())
	assert.Equal(t, "00000011", f.String())
	// don't-care bits stay low even for out-of-range inputs
	assert.Equal(t, Frame(0b111), NewFrame(0xFF, 0xFF, 0xFF))
}

func TestSendWaveform(t *testing.T) {
	enc, s, rec := newTestEncoder()
	tx := NewWrite(0x04, 0x80)

	frame, err := enc.Send(tx)
	require.NoError(t, err)
	assert.Equal(t, IdleFrame, frame)

	// select, 16 x (low, high), release
	require.Len(t, rec.drives, 1+2*WordBits+1)

	first := rec.drives[0]
	assert.Equal(t, uint64(0), first.tick)
	assert.Equal(t, NewFrame(0, 0, 0), first.frame)

	word := tx.Word()
	for i := 0; i < WordBits; i++ {
		low := rec.drives[1+2*i]
		high := rec.drives[2+2*i]
		want := uint8(word>>uint(WordBits-1-i)) & 1

		assert.Equal(t, uint8(0), low.frame.NCS(), "bit %d: chip-select must stay active", i)
		assert.Equal(t, uint8(0), low.frame.SCLK(), "bit %d: clock low first", i)
		assert.Equal(t, uint8(1), high.frame.SCLK(), "bit %d: clock high second", i)
		assert.Equal(t, want, low.frame.COPI(), "bit %d: data", i)
		assert.Equal(t, low.frame.COPI(), high.frame.COPI(), "bit %d: data stable across the pulse", i)
		assert.Zero(t, uint8(high.frame)&^0b111, "bit %d: don't-care bits low", i)
	}

	last := rec.drives[len(rec.drives)-1]
	assert.Equal(t, IdleFrame, last.frame)

	// One setup tick, 32 half-periods of 51 ticks (5us strictly exceeded at
	// 100ns per tick), then the settle window.
	assert.Equal(t, uint64(1+2*WordBits*51), last.tick)
	assert.Equal(t, uint64(1+2*WordBits*51+600), s.Ticks())
}

func TestSendHalfPeriodSpacing(t *testing.T) {
	enc, _, rec := newTestEncoder()
	_, err := enc.Send(NewRead(0x41, 0xEF))
	require.NoError(t, err)

	for i := 2; i < len(rec.drives); i++ {
		gap := rec.drives[i].tick - rec.drives[i-1].tick
		assert.Equal(t, uint64(51), gap, "drive %d", i)
	}
}

func TestSendHalfPeriodCoarseTicks(t *testing.T) {
	// 2us ticks: 5us is strictly exceeded on the third poll
	s := sim.New(2 * time.Microsecond)
	rec := &recorder{clock: s}
	enc := NewEncoder(s, rec, Config{SCLKPeriod: 10 * time.Microsecond, SetupTicks: 1, SettleTicks: 0}, nil)

	_, err := enc.Send(NewWrite(1, 1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1+2*WordBits*3), s.Ticks())
}

func TestSendInvalidArgument(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
	}{
		{"address too large", NewWrite(128, 0)},
		{"negative address", NewWrite(-1, 0)},
		{"payload too large", NewWrite(0, 256)},
		{"negative payload", NewRead(0, -1)},
		{"bad direction", Transaction{Direction: 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, s, rec := newTestEncoder()
			_, err := enc.Send(tt.tx)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArgument))
			assert.Empty(t, rec.drives, "no pins may be driven")
			assert.Equal(t, uint64(0), s.Ticks(), "no time may pass")
		})
	}
}
