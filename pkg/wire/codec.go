package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dyscypliner/dyscypliner-go/pkg/registry"
	"github.com/dyscypliner/dyscypliner-go/pkg/status"
)

// Codec errors.
var (
	ErrEmptyCommand   = errors.New("empty command")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingName    = errors.New("missing device name")
)

// EncodeInit encodes the initialization message for a newly connected
// observer: the full device roster in creation order as a JSON array.
func EncodeInit(devices []registry.Device) (string, error) {
	if devices == nil {
		devices = []registry.Device{}
	}
	data, err := json.Marshal(devices)
	if err != nil {
		return "", fmt.Errorf("encoding device snapshot: %w", err)
	}
	return "INIT " + string(data), nil
}

// EncodeNewDevice encodes the announcement for a freshly created device.
func EncodeNewDevice(d registry.Device) string {
	return fmt.Sprintf("NEWDEV %s %s %s", d.ID, d.Name, d.Status)
}

// EncodeNewStatus encodes the announcement for a device status change.
func EncodeNewStatus(id string, s status.Status) string {
	return fmt.Sprintf("NEWSTATUS %s %s", id, s)
}

// Command is an inbound observer command.
type Command struct {
	// Name is the requested device name for an ADDDEV command.
	Name string
}

// ParseCommand parses an inbound observer text line. Only ADDDEV is
// recognized; anything else is rejected with ErrUnknownCommand so the
// session can log and drop it.
func ParseCommand(line string) (Command, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{}, ErrEmptyCommand
	}

	verb, rest, _ := strings.Cut(trimmed, " ")
	if verb != "ADDDEV" {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
	if rest == "" {
		return Command{}, ErrMissingName
	}
	return Command{Name: rest}, nil
}

// DecodeInit parses an INIT message back into the device roster.
// Used by observer clients.
func DecodeInit(msg string) ([]registry.Device, error) {
	payload, ok := strings.CutPrefix(msg, "INIT ")
	if !ok {
		return nil, fmt.Errorf("%w: not an INIT message", ErrUnknownCommand)
	}
	var devices []registry.Device
	if err := json.Unmarshal([]byte(payload), &devices); err != nil {
		return nil, fmt.Errorf("decoding device snapshot: %w", err)
	}
	return devices, nil
}

// AnnouncementKind discriminates observer-bound messages.
type AnnouncementKind uint8

const (
	// AnnounceInit carries the full device roster.
	AnnounceInit AnnouncementKind = iota
	// AnnounceNewDevice announces a freshly created device.
	AnnounceNewDevice
	// AnnounceNewStatus announces a device status change.
	AnnounceNewStatus
)

// Announcement is a parsed observer-bound message. Devices is populated for
// INIT; Device for NEWDEV and NEWSTATUS (NEWSTATUS fills ID and Status only).
type Announcement struct {
	Kind    AnnouncementKind
	Devices []registry.Device
	Device  registry.Device
}

// ParseAnnouncement parses an observer-bound text line. Used by observer
// clients.
func ParseAnnouncement(line string) (Announcement, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Announcement{}, ErrEmptyCommand
	}

	verb, rest, _ := strings.Cut(trimmed, " ")
	switch verb {
	case "INIT":
		devices, err := DecodeInit(trimmed)
		if err != nil {
			return Announcement{}, err
		}
		return Announcement{Kind: AnnounceInit, Devices: devices}, nil

	case "NEWDEV":
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			return Announcement{}, fmt.Errorf("%w: short NEWDEV", ErrUnknownCommand)
		}
		s, err := status.Parse(fields[len(fields)-1])
		if err != nil {
			return Announcement{}, err
		}
		return Announcement{Kind: AnnounceNewDevice, Device: registry.Device{
			ID:     fields[0],
			Name:   strings.Join(fields[1:len(fields)-1], " "),
			Status: s,
		}}, nil

	case "NEWSTATUS":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Announcement{}, fmt.Errorf("%w: short NEWSTATUS", ErrUnknownCommand)
		}
		s, err := status.Parse(fields[1])
		if err != nil {
			return Announcement{}, err
		}
		return Announcement{Kind: AnnounceNewStatus, Device: registry.Device{
			ID:     fields[0],
			Status: s,
		}}, nil

	default:
		return Announcement{}, fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
}
