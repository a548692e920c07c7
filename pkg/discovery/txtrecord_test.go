package discovery

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeHubTXT(t *testing.T) {
	info := &HubInfo{
		InstanceName: "dyscypliner-hub",
		Port:         8080,
		Version:      "1",
		DeviceCount:  7,
	}

	txt := EncodeHubTXT(info)
	if txt[TXTKeyVersion] != "1" {
		t.Errorf("Expected ver=1, got %q", txt[TXTKeyVersion])
	}
	if txt[TXTKeyDeviceCount] != "7" {
		t.Errorf("Expected devices=7, got %q", txt[TXTKeyDeviceCount])
	}

	decoded, err := DecodeHubTXT(txt)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Version != info.Version || decoded.DeviceCount != info.DeviceCount {
		t.Errorf("Round trip mismatch: %+v", decoded)
	}
}

func TestDecodeHubTXTMissingVersion(t *testing.T) {
	_, err := DecodeHubTXT(TXTRecordMap{TXTKeyDeviceCount: "3"})
	if !errors.Is(err, ErrMissingRequired) {
		t.Errorf("Expected ErrMissingRequired, got %v", err)
	}
}

func TestDecodeHubTXTBadDeviceCount(t *testing.T) {
	for _, bad := range []string{"many", "-2", "1.5"} {
		_, err := DecodeHubTXT(TXTRecordMap{
			TXTKeyVersion:     "1",
			TXTKeyDeviceCount: bad,
		})
		if !errors.Is(err, ErrInvalidTXTRecord) {
			t.Errorf("Count %q: expected ErrInvalidTXTRecord, got %v", bad, err)
		}
	}
}

func TestTXTRecordStringConversion(t *testing.T) {
	txt := TXTRecordMap{"ver": "1", "devices": "2", "flag": ""}

	strs := TXTRecordsToStrings(txt)
	if len(strs) != 3 {
		t.Fatalf("Expected 3 strings, got %d", len(strs))
	}

	back := StringsToTXTRecords(strs)
	for k, v := range txt {
		if back[k] != v {
			t.Errorf("Key %q: expected %q, got %q", k, v, back[k])
		}
	}
}

func TestValidateInstanceName(t *testing.T) {
	if err := ValidateInstanceName("dyscypliner-hub"); err != nil {
		t.Errorf("Valid name rejected: %v", err)
	}
	if err := ValidateInstanceName(""); err == nil {
		t.Error("Empty name should be rejected")
	}
	if err := ValidateInstanceName(strings.Repeat("x", 64)); !errors.Is(err, ErrInstanceNameTooLong) {
		t.Errorf("Expected ErrInstanceNameTooLong, got %v", err)
	}
}
