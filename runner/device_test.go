package runner

import (
	"bytes"
	"log"
	"testing"

	"github.com/notargets/TileKernel/kernels"
	"github.com/notargets/TileKernel/runner/builder"
	"github.com/notargets/TileKernel/tiling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDevice_Defaults(t *testing.T) {
	dev := newTestDevice(t, builder.Config{})
	assert.Equal(t, 8, dev.Config.CoreCount)
	assert.Equal(t, 248*1024, dev.Config.BufferBytes)
	assert.Equal(t, 2, dev.Config.BufferNum)
	assert.Equal(t, 32, dev.Config.Alignment)
	assert.NotNil(t, dev.Config.Logger)
	assert.Equal(t, DeviceStats{}, dev.Stats())
}

func TestNewDevice_Invalid(t *testing.T) {
	for name, cfg := range map[string]builder.Config{
		"NegativeCores":   {CoreCount: -1},
		"NegativeBudget":  {BufferBytes: -4},
		"BadAlignment":    {Alignment: 24},
		"NegativeBuffers": {BufferNum: -2},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewDevice(cfg)
			assert.ErrorIs(t, err, tiling.ErrConfig)
		})
	}
}

func TestDevice_VerboseLogging(t *testing.T) {
	var buf bytes.Buffer
	dev := newTestDevice(t, builder.Config{
		CoreCount: 2,
		Verbose:   true,
		Logger:    log.New(&buf, "", 0),
	})
	assert.Contains(t, buf.String(), "Created device: 2 cores")

	runThreshold(t, dev, ramp(300), kernels.ThresholdTilingData{Thresh: 10, MaxVal: 20})
	assert.Contains(t, buf.String(), "Launched threshold_binary: 300 elements on 2/2 cores")
}

func TestMemory_HostTransfers(t *testing.T) {
	dev := newTestDevice(t, builder.Config{})
	m, err := Malloc[int32](dev, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Len())

	require.NoError(t, m.Upload([]int32{1, 2, 3, 4}))
	out := make([]int32, 4)
	require.NoError(t, m.Download(out))
	assert.Equal(t, []int32{1, 2, 3, 4}, out)

	assert.ErrorIs(t, m.Upload([]int32{1}), tiling.ErrConfig)
	m.Free()
	assert.ErrorIs(t, m.Download(out), tiling.ErrConfig)

	_, err = Malloc[float32](nil, 1)
	assert.ErrorIs(t, err, tiling.ErrConfig)
	_, err = Malloc[float32](dev, -1)
	assert.ErrorIs(t, err, tiling.ErrConfig)
}

func TestUploadParams(t *testing.T) {
	dev := newTestDevice(t, builder.Config{})
	rec := kernels.ThresholdTilingData{MaxVal: 255, Thresh: 200, TotalLength: 99532800, ThreshType: kernels.ThreshTrunc}
	p, err := UploadParams(dev, rec)
	require.NoError(t, err)
	require.Len(t, p.Bytes(), kernels.ThresholdTilingDataSize)

	var back kernels.ThresholdTilingData
	require.NoError(t, back.UnmarshalBinary(p.Bytes()))
	assert.Equal(t, rec, back)

	// Bytes hands out a copy
	b := p.Bytes()
	b[0] = 0
	assert.Equal(t, byte(255), p.Bytes()[0])
}
