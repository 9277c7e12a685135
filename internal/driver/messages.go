package driver

import (
	"github.com/srg/ibbq/internal/device"
	"github.com/srg/ibbq/internal/protocol"
	"github.com/srg/ibbq/internal/thermometer"
)

// message is anything the event loop handles.
type message interface{}

type notificationKind int

const (
	temperatureNotification notificationKind = iota
	batteryNotification
)

func (k notificationKind) String() string {
	if k == batteryNotification {
		return "battery"
	}
	return "temperature"
}

type (
	advertisementMsg struct {
		adv device.Advertisement
	}

	scanEndedMsg struct {
		gen uint64
		err error
	}

	restartScanMsg struct{}

	dialResultMsg struct {
		session string
		client  device.Client
		err     error
	}

	discoveredMsg struct {
		session  string
		services []device.Service
		err      error
	}

	pairedMsg struct {
		session string
		err     error
	}

	setupResultMsg struct {
		session string
		op      string
		err     error
	}

	notificationMsg struct {
		session string
		kind    notificationKind
		data    []byte
	}

	keepaliveFailedMsg struct {
		session string
		err     error
	}

	disconnectedMsg struct {
		session string
	}

	setUnitsMsg struct {
		unit  protocol.Unit
		reply chan error
	}

	unitWrittenMsg struct {
		address string
		unit    protocol.Unit
		err     error
		reply   chan error
	}

	snapshotMsg struct {
		reply chan thermometer.Snapshot
	}
)

func (d *Driver) handle(msg message) {
	switch m := msg.(type) {
	case advertisementMsg:
		d.handleAdvertisement(m.adv)
	case scanEndedMsg:
		d.handleScanEnded(m)
	case restartScanMsg:
		if d.model.Status == thermometer.Scanning {
			d.startScan()
		}
	case dialResultMsg:
		d.handleDialResult(m)
	case discoveredMsg:
		d.handleDiscovered(m)
	case pairedMsg:
		d.handlePaired(m)
	case setupResultMsg:
		d.handleSetupResult(m)
	case notificationMsg:
		d.handleNotification(m)
	case keepaliveFailedMsg:
		d.handleKeepaliveFailed(m)
	case disconnectedMsg:
		d.handleDisconnected(m)
	case setUnitsMsg:
		d.handleSetUnits(m)
	case unitWrittenMsg:
		d.handleUnitWritten(m)
	case snapshotMsg:
		m.reply <- d.model.Snapshot()
	default:
		d.logger.Errorf("driver: unexpected message %T", msg)
	}
}
