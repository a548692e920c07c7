package discovery

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// ServiceType is the mDNS service type for a hub.
	ServiceType = "_dyscypliner._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen is the mDNS instance name length limit.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyVersion     = "ver"
	TXTKeyDeviceCount = "devices"
)

var (
	// ErrMissingRequired indicates a required TXT field is absent.
	ErrMissingRequired = errors.New("missing required TXT field")

	// ErrInvalidTXTRecord indicates a malformed TXT record value.
	ErrInvalidTXTRecord = errors.New("invalid TXT record")

	// ErrInstanceNameTooLong indicates the instance name exceeds mDNS limits.
	ErrInstanceNameTooLong = errors.New("instance name too long")
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// HubInfo describes an advertised hub.
type HubInfo struct {
	// InstanceName is the mDNS instance name.
	InstanceName string

	// Port the hub listens on.
	Port int

	// Version is the protocol version string.
	Version string

	// DeviceCount is the number of registered devices at advertise time.
	DeviceCount int
}

// EncodeHubTXT creates TXT records for hub discovery.
func EncodeHubTXT(info *HubInfo) TXTRecordMap {
	txt := make(TXTRecordMap)
	txt[TXTKeyVersion] = info.Version
	txt[TXTKeyDeviceCount] = strconv.Itoa(info.DeviceCount)
	return txt
}

// DecodeHubTXT parses TXT records from hub discovery.
func DecodeHubTXT(txt TXTRecordMap) (*HubInfo, error) {
	info := &HubInfo{}

	var ok bool
	info.Version, ok = txt[TXTKeyVersion]
	if !ok || info.Version == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}

	if dcStr, ok := txt[TXTKeyDeviceCount]; ok {
		dc, err := strconv.Atoi(dcStr)
		if err != nil || dc < 0 {
			return nil, fmt.Errorf("%w: bad device count %q", ErrInvalidTXTRecord, dcStr)
		}
		info.DeviceCount = dc
	}

	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value"
// strings, the format mDNS libraries expect.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a
// TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if len(parts) == 1 && parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInstanceNameTooLong)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
