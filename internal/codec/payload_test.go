package codec

import "testing"

func TestDecodePayload_Corrupt(t *testing.T) {
	// An interrupted write can leave a truncated record on disk. The codec
	// must report it rather than return a partial field set.
	_, err := DecodePayload([]byte{0xc1, 0xff, 0x00})
	if err == nil {
		t.Error("expected error for corrupt payload")
	}
}

func TestEncodePayload_NestedFields(t *testing.T) {
	fields := map[string]any{
		"number": "501",
		"total":  "129000.00",
		"items": []any{
			map[string]any{"product": "lagman", "qty": int64(2)},
		},
		"is_deleted": false,
	}

	data, err := EncodePayload(fields)
	if err != nil {
		t.Fatalf("EncodePayload failed: %v", err)
	}

	decoded, err := DecodePayload(data)
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}

	if decoded["number"] != "501" {
		t.Errorf("expected number '501', got %v", decoded["number"])
	}
	items, ok := decoded["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("expected one decoded item, got %v", decoded["items"])
	}
	item, ok := items[0].(map[string]any)
	if !ok {
		t.Fatalf("expected item to decode with string keys, got %T", items[0])
	}
	if item["product"] != "lagman" {
		t.Errorf("expected product 'lagman', got %v", item["product"])
	}
}
