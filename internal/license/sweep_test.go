package license

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *engineFixture) generate(t *testing.T, months int) *Issued {
	t.Helper()
	issued, err := f.engine.Generate(context.Background(), "user@example.com", months)
	require.NoError(t, err)
	return issued
}

func TestSweepEmptyStore(t *testing.T) {
	f := newEngineFixture(t)

	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{}, report)
}

func TestSweepWarnsInsideWindow(t *testing.T) {
	f := newEngineFixture(t)
	issued := f.generate(t, 1)
	rec := f.record(t, issued.License)

	f.now = time.UnixMilli(rec.ValidUntil - rec.RenewalWindow/2)
	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Warned)
	assert.Equal(t, 0, report.Expired)
	assert.Equal(t, []string{issued.License}, f.direct.warnings)

	// Warnings are not deduplicated: the next sweep warns again.
	report, err = f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Warned)
	assert.Len(t, f.direct.warnings, 2)
}

func TestSweepLeavesActiveAlone(t *testing.T) {
	f := newEngineFixture(t)
	f.generate(t, 1)

	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Warned)
	assert.Equal(t, 0, report.Expired)
	assert.Empty(t, f.direct.warnings)
}

func TestSweepExpiresAndBlocks(t *testing.T) {
	f := newEngineFixture(t)
	issued := f.generate(t, 1)
	rec := f.record(t, issued.License)

	f.now = time.UnixMilli(rec.ValidUntil)
	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Warned)
	assert.Equal(t, []string{issued.License}, f.direct.expired)
	assert.True(t, f.record(t, issued.License).IsBlocked)
}

func TestSweepSkipsBlocked(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	issued := f.generate(t, 1)
	require.NoError(t, f.engine.Block(ctx, issued.License))

	rec := f.record(t, issued.License)
	f.now = time.UnixMilli(rec.ValidUntil + 1)

	report, err := f.engine.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Expired)
	assert.Empty(t, f.direct.expired, "already blocked records get no second mail")
}

func TestSweepBlocksEvenWhenMailFails(t *testing.T) {
	f := newEngineFixture(t)
	issued := f.generate(t, 1)
	rec := f.record(t, issued.License)

	f.direct.err = assert.AnError
	f.now = time.UnixMilli(rec.ValidUntil + 1)

	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.Expired)
	assert.True(t, f.record(t, issued.License).IsBlocked)
}

func TestSweepIsolatesPerRecordFailures(t *testing.T) {
	f := newEngineFixture(t)
	a := f.generate(t, 1)
	b := f.generate(t, 1)

	rec := f.record(t, a.License)
	f.direct.err = assert.AnError
	f.now = time.UnixMilli(rec.ValidUntil - rec.RenewalWindow/2)

	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)

	// Both records were visited despite every mail failing.
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 2, report.Errors)
	assert.Equal(t, 0, report.Warned)

	_ = b
}

func TestSweepMixedPopulation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	active := f.generate(t, 12)
	warning := f.generate(t, 1)
	expiring := f.generate(t, 1)
	blocked := f.generate(t, 1)
	require.NoError(t, f.engine.Block(ctx, blocked.License))

	warnRec := f.record(t, warning.License)
	f.now = time.UnixMilli(warnRec.ValidUntil - warnRec.RenewalWindow/2)

	// Push one record past expiry by rewriting its validity.
	expRec := f.record(t, expiring.License)
	expRec.ValidUntil = f.now.UnixMilli() - 1000
	data, err := expRec.marshal()
	require.NoError(t, err)
	require.NoError(t, f.store.Put("license:"+expiring.License, data))

	report, err := f.engine.Sweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Scanned)
	assert.Equal(t, 1, report.Warned)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Errors)

	assert.False(t, f.record(t, active.License).IsBlocked)
	assert.False(t, f.record(t, warning.License).IsBlocked)
	assert.True(t, f.record(t, expiring.License).IsBlocked)
}
