package device_test

import (
	"context"
	"testing"

	"github.com/srg/ibbq/internal/device"
	"github.com/srg/ibbq/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discover(t *testing.T, p *testutils.FakePeripheral) []device.Service {
	t.Helper()
	central := testutils.NewFakeCentral(p)
	client, err := central.Dial(context.Background(), p.Address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.CancelConnection() })

	services, err := client.DiscoverServices(context.Background())
	require.NoError(t, err)
	return services
}

func TestIndexService(t *testing.T) {
	// GOAL: Verify characteristics are found by UUID whatever their spelling
	//
	// TEST SCENARIO: iBBQ profile → index fff0 → lookup short, upper-case and 128-bit forms

	services := discover(t, testutils.IBBQPeripheral("AA:BB").Build())

	idx, err := device.IndexService(services, "0000FFF0-0000-1000-8000-00805F9B34FB")
	require.NoError(t, err, "service MUST match its 128-bit form")

	for _, uuid := range []string{"fff4", "FFF4", "0xfff4", "0000fff4-0000-1000-8000-00805f9b34fb"} {
		c, err := idx.Lookup("fff0", uuid)
		require.NoError(t, err, "lookup of %q MUST succeed", uuid)
		assert.Equal(t, "fff4", c.UUID())
	}
}

func TestIndexServiceMissing(t *testing.T) {
	services := discover(t, testutils.IBBQPeripheralWithout("AA:BB", "fff5").Build())

	_, err := device.IndexService(services, "180f")
	var notFound *device.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "service", notFound.Resource)

	idx, err := device.IndexService(services, "fff0")
	require.NoError(t, err)
	_, err = idx.Lookup("fff0", "fff5")
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"fff0", "fff5"}, notFound.UUIDs)
}
