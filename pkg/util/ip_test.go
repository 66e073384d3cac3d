package util

import (
	"net"
	"testing"
)

func TestParseIPWithMask(t *testing.T) {
	tests := []struct {
		name     string
		cidr     string
		wantIP   string
		wantMask int
		wantErr  bool
	}{
		{
			name:     "valid /24",
			cidr:     "192.168.1.100/24",
			wantIP:   "192.168.1.100",
			wantMask: 24,
		},
		{
			name:     "valid v6 /64",
			cidr:     "2602:fcfb:1d::2/64",
			wantIP:   "2602:fcfb:1d::2",
			wantMask: 64,
		},
		{
			name:    "invalid - no mask",
			cidr:    "192.168.1.100",
			wantErr: true,
		},
		{
			name:    "invalid - bad IP",
			cidr:    "999.999.999.999/24",
			wantErr: true,
		},
		{
			name:    "invalid - empty",
			cidr:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, mask, err := ParseIPWithMask(tt.cidr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseIPWithMask() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if ip.String() != tt.wantIP {
					t.Errorf("ParseIPWithMask() IP = %v, want %v", ip.String(), tt.wantIP)
				}
				if mask != tt.wantMask {
					t.Errorf("ParseIPWithMask() mask = %v, want %v", mask, tt.wantMask)
				}
			}
		})
	}
}

func TestNthHost(t *testing.T) {
	tests := []struct {
		name    string
		subnet  string
		n       int
		want    string
		wantErr bool
	}{
		{
			name:   "first host v4",
			subnet: "10.128.0.0/24",
			n:      1,
			want:   "10.128.0.1",
		},
		{
			name:   "tenth host v4",
			subnet: "10.128.0.0/24",
			n:      10,
			want:   "10.128.0.10",
		},
		{
			name:   "first host v6",
			subnet: "2602:fcfb:1d::/64",
			n:      1,
			want:   "2602:fcfb:1d::1",
		},
		{
			name:    "outside subnet",
			subnet:  "10.128.0.0/30",
			n:       10,
			wantErr: true,
		},
		{
			name:    "zero index",
			subnet:  "10.128.0.0/24",
			n:       0,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, subnet, err := net.ParseCIDR(tt.subnet)
			if err != nil {
				t.Fatalf("bad test subnet: %v", err)
			}
			ip, err := NthHost(subnet, tt.n)
			if (err != nil) != tt.wantErr {
				t.Errorf("NthHost() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && ip.String() != tt.want {
				t.Errorf("NthHost() = %v, want %v", ip, tt.want)
			}
		})
	}
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "upper to lower", in: "0A:1B:2C:3D:4E:5F", want: "0a:1b:2c:3d:4e:5f"},
		{name: "dash separated", in: "0a-1b-2c-3d-4e-5f", want: "0a:1b:2c:3d:4e:5f"},
		{name: "already canonical", in: "0a:1b:2c:3d:4e:5f", want: "0a:1b:2c:3d:4e:5f"},
		{name: "garbage unchanged", in: "not-a-mac", want: "not-a-mac"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeMAC(tt.in); got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateVLAN(t *testing.T) {
	tests := []struct {
		vlan    int
		wantErr bool
	}{
		{vlan: 1},
		{vlan: 100},
		{vlan: 4094},
		{vlan: 0, wantErr: true},
		{vlan: 4095, wantErr: true},
		{vlan: -5, wantErr: true},
	}

	for _, tt := range tests {
		err := ValidateVLAN(tt.vlan)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateVLAN(%d) error = %v, wantErr %v", tt.vlan, err, tt.wantErr)
		}
	}
}

func TestValidateMTU(t *testing.T) {
	tests := []struct {
		mtu     int
		wantErr bool
	}{
		{mtu: 1500},
		{mtu: 9000},
		{mtu: 68},
		{mtu: 67, wantErr: true},
		{mtu: 9217, wantErr: true},
	}

	for _, tt := range tests {
		err := ValidateMTU(tt.mtu)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateMTU(%d) error = %v, wantErr %v", tt.mtu, err, tt.wantErr)
		}
	}
}
