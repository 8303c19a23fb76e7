package bluez

import (
	"context"
	"errors"
	"testing"

	dbus "github.com/godbus/dbus/v5"

	"github.com/chaz8081/a2dp-autoconnect/internal/bt"
)

func transportObject(uuid string) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{transportIface: props("UUID", uuid, "State", "idle")}
}

func TestA2DPState(t *testing.T) {
	tests := []struct {
		name string
		objs managedObjects
		want bt.ProfileConnectionState
	}{
		{
			name: "unknown device",
			objs: managedObjects{},
			want: bt.StateDisconnected,
		},
		{
			name: "not connected",
			objs: managedObjects{testDevPath: deviceObject("Connected", false)},
			want: bt.StateDisconnected,
		},
		{
			name: "connected resolving services",
			objs: managedObjects{testDevPath: deviceObject("Connected", true, "ServicesResolved", false)},
			want: bt.StateConnecting,
		},
		{
			name: "connected without audio",
			objs: managedObjects{testDevPath: deviceObject("Connected", true, "ServicesResolved", true)},
			want: bt.StateDisconnected,
		},
		{
			name: "a2dp transport",
			objs: managedObjects{
				testDevPath:                   deviceObject("Connected", true, "ServicesResolved", true),
				testDevPath + "/sep1/fd0":     transportObject(A2DPSinkUUID),
				"/org/bluez/hci0/dev_11/fd0":  transportObject(A2DPSinkUUID),
				"/org/bluez/hci0/dev_AA_BB_C": transportObject(A2DPSinkUUID),
			},
			want: bt.StateConnected,
		},
		{
			name: "other device transport",
			objs: managedObjects{
				testDevPath: deviceObject("Connected", true, "ServicesResolved", true),
				"/org/bluez/hci0/dev_11_22_33_44_55_66/sep1/fd0": transportObject(A2DPSinkUUID),
			},
			want: bt.StateDisconnected,
		},
		{
			name: "hfp transport only",
			objs: managedObjects{
				testDevPath:               deviceObject("Connected", true, "ServicesResolved", true),
				testDevPath + "/sep1/fd0": transportObject("0000111e-0000-1000-8000-00805f9b34fb"),
			},
			want: bt.StateDisconnected,
		},
		{
			name: "upper-case uuid",
			objs: managedObjects{
				testDevPath:               deviceObject("Connected", true),
				testDevPath + "/sep1/fd0": transportObject("0000110B-0000-1000-8000-00805F9B34FB"),
			},
			want: bt.StateConnected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a2dpState(tt.objs, testDevPath); got != tt.want {
				t.Errorf("a2dpState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestA2DPHandleConnectionState(t *testing.T) {
	b := newFakeBus()
	b.objs[testDevPath] = deviceObject("Connected", true)
	b.objs[testDevPath+"/sep1/fd0"] = transportObject(A2DPSinkUUID)
	h := newPlatform(b, "hci0").NewA2DPHandle()

	got, err := h.ConnectionState(context.Background(), bt.Device{Address: "aa:bb:cc:dd:ee:ff"})
	if err != nil {
		t.Fatalf("ConnectionState() error = %v", err)
	}
	if got != bt.StateConnected {
		t.Errorf("ConnectionState() = %v, want connected", got)
	}

	errBus := errors.New("bus gone")
	b.set(func(b *fakeBus) { b.objsErr = errBus })
	if _, err := h.ConnectionState(context.Background(), bt.Device{Address: testAddr}); !errors.Is(err, errBus) {
		t.Errorf("ConnectionState() error = %v, want %v", err, errBus)
	}
}

func TestA2DPHandleConnect(t *testing.T) {
	errTransport := errors.New("connection reset")

	tests := []struct {
		name    string
		err     error
		wantOK  bool
		wantErr bool
	}{
		{name: "success"},
		{name: "already connected", err: dbus.Error{Name: errAlreadyConnected}},
		{name: "already connected pointer", err: &dbus.Error{Name: errAlreadyConnected}},
		{name: "refused", err: dbus.Error{Name: "org.bluez.Error.Failed"}},
		{name: "not available", err: &dbus.Error{Name: "org.bluez.Error.NotAvailable"}},
		{name: "no reply", err: dbus.Error{Name: "org.freedesktop.DBus.Error.NoReply"}, wantErr: true},
		{name: "transport", err: errTransport, wantErr: true},
	}
	for i := range tests {
		tests[i].wantOK = tests[i].err == nil || dbusErrorName(tests[i].err) == errAlreadyConnected
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBus()
			b.callErr[deviceIface+".ConnectProfile"] = tt.err
			h := newPlatform(b, "hci0").NewA2DPHandle()

			ok, err := h.Connect(context.Background(), bt.Device{Address: testAddr})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Connect() error = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Errorf("Connect() = %v, want %v", ok, tt.wantOK)
			}

			calls := b.callsTo(deviceIface + ".ConnectProfile")
			if len(calls) != 1 {
				t.Fatalf("ConnectProfile calls = %d, want 1", len(calls))
			}
			if calls[0].path != testDevPath || calls[0].args[0] != A2DPSinkUUID {
				t.Errorf("ConnectProfile call = %+v", calls[0])
			}
		})
	}
}
