package domain

import (
	"strings"
	"testing"

	apperrors "github.com/zmooth/zmooth/internal/platform/errors"
)

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("Firewall-Rule")
	if err != nil || kind != KindFirewallRule {
		t.Fatalf("ParseKind = %q, %v", kind, err)
	}
	if _, err := ParseKind("vlan"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDecodeSpecRejectsUnknownFields(t *testing.T) {
	if _, err := DecodeSpec(KindMACFilter, []byte(`{"mac":"aa:bb:cc:dd:ee:ff","colour":"red"}`)); err == nil {
		t.Fatal("expected unknown field error")
	}
	spec, err := DecodeSpec(KindMACFilter, []byte(`{"mac":"aa:bb:cc:dd:ee:ff","action":"block"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := spec.(MACFilter); !ok {
		t.Fatalf("expected MACFilter value, got %T", spec)
	}
}

func TestRecordNormalize(t *testing.T) {
	record, err := Record{Name: "  Lobby AP ", Active: true, Spec: MACFilter{MAC: "aa-bb-cc-dd-ee-ff", Action: "Block"}}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if record.Name != "Lobby AP" || record.Kind != KindMACFilter {
		t.Fatalf("unexpected record %+v", record)
	}
	filter := record.Spec.(MACFilter)
	if filter.MAC != "AA:BB:CC:DD:EE:FF" || !filter.Blocks() {
		t.Fatalf("unexpected filter %+v", filter)
	}
	if !strings.Contains(record.SearchText(), "aa:bb:cc:dd:ee:ff") {
		t.Fatalf("search text should include the MAC: %q", record.SearchText())
	}

	if _, err := (Record{Spec: MACFilter{}}).Normalize(); err == nil {
		t.Fatal("expected missing name error")
	}
	if _, err := (Record{Name: "x", Kind: KindRouter, Spec: MACFilter{}}).Normalize(); err == nil {
		t.Fatal("expected kind mismatch error")
	}
}

func TestCSVHeaderAndRow(t *testing.T) {
	header, err := CSVHeader(KindDeviceLimit)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if strings.Join(header, ",") != "Name,Active,Plan,Devices" {
		t.Fatalf("unexpected header %v", header)
	}
	row := Record{Name: "Family", Active: false, Spec: DeviceLimit{PlanID: "plan-1", Devices: 4}}.CSVRow()
	if strings.Join(row, ",") != "Family,No,plan-1,4" {
		t.Fatalf("unexpected row %v", row)
	}
	for _, kind := range Kinds {
		header, err := CSVHeader(kind)
		if err != nil {
			t.Fatalf("header %s: %v", kind, err)
		}
		spec, _ := NewSpec(kind)
		if len(header) != 2+len(spec.CSVRow()) {
			t.Fatalf("%s: header and row widths differ", kind)
		}
	}
}
