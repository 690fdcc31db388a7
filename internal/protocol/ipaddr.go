package protocol

import "net"

// ipv4MappedPrefix is the fixed 12-byte prefix ("::ffff:") that marks a
// 16-byte address as an IPv4-mapped IPv6 address on the wire.
var ipv4MappedPrefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

// BitcoinIpAddr is the 16-byte address representation used in Bitcoin's
// net_addr structure: IPv4 addresses are stored as IPv4-mapped IPv6
// (::ffff:a.b.c.d).
type BitcoinIpAddr [16]byte

// Encode returns the raw 16-byte wire form.
func (a BitcoinIpAddr) Encode() [16]byte {
	return a
}

// DecodeBitcoinIpAddr constructs a BitcoinIpAddr from exactly 16 bytes.
func DecodeBitcoinIpAddr(buf []byte) (BitcoinIpAddr, error) {
	if len(buf) != 16 {
		return BitcoinIpAddr{}, ErrBadLength
	}
	var a BitcoinIpAddr
	copy(a[:], buf)
	return a, nil
}

// BitcoinIpAddrFromNetIP builds a BitcoinIpAddr from a net.IP, mapping
// IPv4 addresses into the IPv4-mapped IPv6 form.
func BitcoinIpAddrFromNetIP(ip net.IP) BitcoinIpAddr {
	var a BitcoinIpAddr
	if v4 := ip.To4(); v4 != nil {
		copy(a[0:12], ipv4MappedPrefix[:])
		copy(a[12:16], v4)
		return a
	}
	if v6 := ip.To16(); v6 != nil {
		copy(a[:], v6)
	}
	return a
}

// isIPv4Mapped reports whether a carries the ::ffff: prefix.
func (a BitcoinIpAddr) isIPv4Mapped() bool {
	for i := 0; i < 12; i++ {
		if a[i] != ipv4MappedPrefix[i] {
			return false
		}
	}
	return true
}

// IPv4 returns the IPv4 address and true if a is IPv4-mapped.
func (a BitcoinIpAddr) IPv4() (net.IP, bool) {
	if !a.isIPv4Mapped() {
		return nil, false
	}
	ip := make(net.IP, 4)
	copy(ip, a[12:16])
	return ip, true
}

// ToNetIP returns the net.IP form, IPv4 or IPv6 as appropriate.
func (a BitcoinIpAddr) ToNetIP() net.IP {
	if v4, ok := a.IPv4(); ok {
		return v4
	}
	ip := make(net.IP, 16)
	copy(ip, a[:])
	return ip
}

// IsUnspecifiedOrLoopback reports whether a represents the unspecified
// address or a loopback address, used by version semantic verification.
func (a BitcoinIpAddr) IsUnspecifiedOrLoopback() bool {
	ip := a.ToNetIP()
	return ip.IsUnspecified() || ip.IsLoopback()
}
