// Package tundev creates and owns the optional TUN interface: when an
// IPv6 /64 prefix is configured, REthos brings up a TUN device, assigns
// <prefix>::1 to it, and treats <prefix>::2 as the MCU's address.
package tundev

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"unsafe"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

const (
	tunPath  = "/dev/net/tun"
	ifNameSz = 16

	// from linux/if_tun.h
	iffTUN   = 0x0001
	iffNoPI  = 0x1000
	tunSetIF = 0x400454ca // TUNSETIFF, _IOW('T', 202, int)
)

// Device is an open TUN interface configured with a /64 prefix. Writes are
// whole IP packets; Reads yield whole IP packets.
type Device struct {
	file    *os.File
	name    string
	prefix  net.IP
	mcuAddr net.IP
}

// ifreq mirrors struct ifreq from linux/if.h: a 16-byte interface name
// followed by a union whose first member (ifr_flags) is what TUNSETIFF
// reads; the trailing padding matches the union's full size.
type ifreq struct {
	name  [ifNameSz]byte
	flags uint16
	_     [22]byte
}

// Open creates a TUN device, assigns prefix::1/64 to it, and reports
// prefix::2 as the MCU's address. prefix must be a /64 IPv6 network
// address (e.g. the result of parsing "<ipv6-prefix>").
func Open(prefix net.IP) (*Device, error) {
	f, err := os.OpenFile(tunPath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("tundev: open %s: %w", tunPath, err)
	}

	var req ifreq
	copy(req.name[:], "rethos%d")
	req.flags = iffTUN | iffNoPI

	if err := ioctl(f.Fd(), tunSetIF, &req); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("tundev: TUNSETIFF: %w", err)
	}

	name := cString(req.name[:])

	localAddr := withHostBits(prefix, 1)
	mcuAddr := withHostBits(prefix, 2)

	if err := configureLink(name, localAddr); err != nil {
		_ = f.Close()
		return nil, err
	}

	log.Info().Str("iface", name).Str("local", localAddr.String()).Str("mcu", mcuAddr.String()).Msg("tun device configured")

	return &Device{file: f, name: name, prefix: prefix, mcuAddr: mcuAddr}, nil
}

// MCUAddress returns the address assigned to the MCU side of the link.
func (d *Device) MCUAddress() net.IP {
	return d.mcuAddr
}

// Name returns the kernel interface name (e.g. "rethos0").
func (d *Device) Name() string {
	return d.name
}

// Read reads one whole IP packet.
func (d *Device) Read(buf []byte) (int, error) {
	return d.file.Read(buf)
}

// Write writes one whole IP packet. Partial writes are reported but not
// retried.
func (d *Device) Write(pkt []byte) (int, error) {
	return d.file.Write(pkt)
}

// Close tears down the TUN device.
func (d *Device) Close() error {
	return d.file.Close()
}

func ioctl(fd uintptr, req uintptr, arg *ifreq) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(arg)))
	if errno != 0 {
		return errno
	}
	return nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// withHostBits returns a copy of a /64 prefix with the low 64 bits set to
// host, producing the "<prefix>::1" / "<prefix>::2" addressing link
// endpoints use.
func withHostBits(prefix net.IP, host byte) net.IP {
	addr := make(net.IP, net.IPv6len)
	copy(addr, prefix.To16())
	for i := 8; i < net.IPv6len-1; i++ {
		addr[i] = 0
	}
	addr[net.IPv6len-1] = host
	return addr
}

// configureLink assigns addr/64 to iface and brings it up by shelling out
// to the system `ip` tool, the common userspace approach to interface
// configuration used alongside raw TUN creation (netlink sockets are
// available but `ip` avoids hand-rolling a netlink encoder for a single
// address assignment).
func configureLink(iface string, addr net.IP) error {
	addCmd := exec.Command("ip", "-6", "addr", "add", addr.String()+"/64", "dev", iface)
	if out, err := addCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tundev: assign address: %w: %s", err, out)
	}

	upCmd := exec.Command("ip", "link", "set", "dev", iface, "up")
	if out, err := upCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("tundev: bring up interface: %w: %s", err, out)
	}
	return nil
}
