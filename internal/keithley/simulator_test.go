package keithley

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sourcemeter/internal/sweep"
)

func TestSimulator_VoltageSourceOhmic(t *testing.T) {
	link, sim := NewSimulatedLink(1000)
	defer link.Close()
	k := New(link)

	require.NoError(t, k.Reset())
	require.NoError(t, k.ConfigureSource(sweep.ModeVoltage))
	require.NoError(t, k.SetCompliance(sweep.ModeVoltage, 0.1))
	require.NoError(t, k.SetOutputEnabled(true))
	require.NoError(t, k.SetBias(2))

	v, i, err := k.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 2, v, 1e-6)
	assert.InDelta(t, 0.002, i, 1e-9)
	assert.True(t, sim.Output())
	assert.Equal(t, 2.0, sim.Level())
}

func TestSimulator_Compliance(t *testing.T) {
	link, _ := NewSimulatedLink(100)
	defer link.Close()
	k := New(link)

	require.NoError(t, k.ConfigureSource(sweep.ModeVoltage))
	require.NoError(t, k.SetCompliance(sweep.ModeVoltage, 0.01))
	require.NoError(t, k.SetOutputEnabled(true))
	require.NoError(t, k.SetBias(-5))

	v, i, err := k.Measure()
	require.NoError(t, err)
	assert.InDelta(t, -0.01, i, 1e-9, "current clamps at compliance")
	assert.InDelta(t, -1, v, 1e-6)
}

func TestSimulator_CurrentSource(t *testing.T) {
	link, _ := NewSimulatedLink(50)
	defer link.Close()
	k := New(link)

	require.NoError(t, k.ConfigureSource(sweep.ModeCurrent))
	require.NoError(t, k.SetCompliance(sweep.ModeCurrent, 1))
	require.NoError(t, k.SetOutputEnabled(true))

	require.NoError(t, k.SetBias(0.01))
	v, i, err := k.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-6)
	assert.InDelta(t, 0.01, i, 1e-9)

	require.NoError(t, k.SetBias(0.1))
	v, _, err = k.Measure()
	require.NoError(t, err)
	assert.InDelta(t, 1, v, 1e-6, "voltage clamps at compliance")
}

func TestSimulator_OutputOffReadsZero(t *testing.T) {
	link, _ := NewSimulatedLink(10)
	defer link.Close()
	k := New(link)

	require.NoError(t, k.SetBias(1))
	v, i, err := k.Measure()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.Zero(t, i)
}

func TestSimulator_ErrorQueue(t *testing.T) {
	link, _ := NewSimulatedLink(10)
	defer link.Close()

	require.NoError(t, link.SendCommand(":BOGUS 1"))
	reply, err := link.Query(":SYST:ERR?")
	require.NoError(t, err)
	assert.Equal(t, `-113,"Undefined header"`, reply)

	reply, err = link.Query(":SYST:ERR?")
	require.NoError(t, err)
	assert.Equal(t, `0,"No error"`, reply)

	reply, err = link.Query(":NOPE?")
	require.NoError(t, err)
	assert.Equal(t, `-113,"Undefined header"`, reply)
}

func TestSimulator_CloseUnblocksRead(t *testing.T) {
	sim := NewSimulator(10)
	done := make(chan error, 1)
	go func() {
		_, err := sim.Read(make([]byte, 8))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, sim.Close())
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Read did not return after Close")
	}
}

func TestSimulator_FullSweep(t *testing.T) {
	link, sim := NewSimulatedLink(1000)
	defer link.Close()

	store := sweep.NewStore()
	exec := sweep.NewExecutor(store, nil, sweep.Hooks{})
	_, err := exec.Configure(sweep.Config{
		Mode:       sweep.ModeVoltage,
		Start:      -1,
		Stop:       1,
		Points:     5,
		Hysteresis: true,
		Compliance: 0.1,
	})
	require.NoError(t, err)
	require.NoError(t, exec.Attach(New(link)))
	require.NoError(t, exec.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, exec.Wait(ctx))

	res, ok := exec.LastResult()
	require.True(t, ok)
	require.NoError(t, res.Err)
	require.NoError(t, res.ShutdownErr)

	want := []float64{-1, -0.5, 0, 0.5, 1, 0.5, 0, -0.5, -1}
	require.Len(t, res.Record.V, len(want))
	for n, v := range want {
		assert.InDelta(t, v, res.Record.V[n], 1e-6)
		assert.InDelta(t, v/1000, res.Record.I[n], 1e-9)
		assert.InDelta(t, v*v/1000, res.Record.P[n], 1e-9)
	}
	assert.False(t, sim.Output(), "output is switched off after the run")
	assert.Zero(t, sim.Level(), "bias returns to zero after the run")
	assert.Equal(t, 1, store.Len())
	assert.False(t, math.IsNaN(res.Record.T[len(want)-1]))
}
