package util

import (
	"fmt"
	"math/big"
	"net"
	"strconv"
	"strings"
)

// ParseIPWithMask parses an IP address with CIDR notation
// Returns the IP, mask length, and any error
func ParseIPWithMask(cidr string) (net.IP, int, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid CIDR notation: %s", cidr)
	}
	ones, _ := ipNet.Mask.Size()
	return ip, ones, nil
}

// SplitIPMask splits a CIDR notation into IP and mask length
// Returns the IP (without mask) and mask length
func SplitIPMask(cidr string) (string, int) {
	parts := strings.Split(cidr, "/")
	if len(parts) != 2 {
		return cidr, 0 // Return as-is if no mask
	}
	maskLen, err := strconv.Atoi(parts[1])
	if err != nil {
		return parts[0], 0
	}
	return parts[0], maskLen
}

// IsValidIP checks if a string is a valid IPv4 or IPv6 address
func IsValidIP(ipStr string) bool {
	return net.ParseIP(ipStr) != nil
}

// IsValidIPv4 checks if a string is a valid IPv4 address
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidCIDR checks if a string is valid CIDR notation (v4 or v6)
func IsValidCIDR(cidr string) bool {
	_, _, err := net.ParseCIDR(cidr)
	return err == nil
}

// NthHost returns the nth usable host address inside subnet, counting from 1
// (the address immediately after the network address). Works for IPv4 and
// IPv6. Returns an error when n falls outside the subnet.
func NthHost(subnet *net.IPNet, n int) (net.IP, error) {
	if subnet == nil {
		return nil, fmt.Errorf("nil subnet")
	}
	if n < 1 {
		return nil, fmt.Errorf("host index must be >= 1, got %d", n)
	}

	base := subnet.IP
	size := 4
	if base.To4() != nil {
		base = base.To4()
	} else {
		base = base.To16()
		size = 16
	}

	addr := new(big.Int).SetBytes(base)
	addr.Add(addr, big.NewInt(int64(n)))

	buf := addr.Bytes()
	if len(buf) > size {
		return nil, fmt.Errorf("host index %d overflows subnet %s", n, subnet)
	}
	ip := make(net.IP, size)
	copy(ip[size-len(buf):], buf)

	if !subnet.Contains(ip) {
		return nil, fmt.Errorf("host index %d outside subnet %s", n, subnet)
	}
	return ip, nil
}

// NormalizeMAC returns the canonical lower-case colon-separated form of a MAC
// address, or the input unchanged when it does not parse.
func NormalizeMAC(mac string) string {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return mac
	}
	return hw.String()
}

// ValidateMTU checks if MTU is within valid range
func ValidateMTU(mtu int) error {
	if mtu < 68 || mtu > 9216 {
		return fmt.Errorf("MTU must be between 68 and 9216, got %d", mtu)
	}
	return nil
}

// ValidateVLAN checks if a VLAN ID is within the usable 802.1Q range
func ValidateVLAN(vlan int) error {
	if vlan < 1 || vlan > 4094 {
		return fmt.Errorf("VLAN must be between 1 and 4094, got %d", vlan)
	}
	return nil
}
