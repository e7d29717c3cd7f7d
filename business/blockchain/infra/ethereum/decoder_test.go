package ethereum

import (
	"testing"

	"github.com/fd1az/headlag-exporter/business/blockchain/domain"
	"github.com/fd1az/headlag-exporter/internal/apperror"
)

func headMessage(result string) []byte {
	return []byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xsub","result":` + result + `}}`)
}

func TestDecoder_Decode(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want domain.BlockHead
	}{
		{
			name: "full head",
			raw: headMessage(`{"number":"0x10","timestamp":"0x5f5e100","gasUsed":"0x4c4b40",` +
				`"gasLimit":"0x989680","miner":"0xabc","hash":"0xdeadbeef"}`),
			want: domain.BlockHead{
				Number: 16, Timestamp: 100000000, GasUsed: 5000000, GasLimit: 10000000,
				Miner: "0xabc", Hash: "0xdeadbeef",
			},
		},
		{
			name: "leading zeros tolerated",
			raw: headMessage(`{"number":"0x0010","timestamp":"0x05f5e100","gasUsed":"0x00",` +
				`"gasLimit":"0x0","miner":"0xABC"}`),
			want: domain.BlockHead{Number: 16, Timestamp: 100000000, Miner: "0xABC"},
		},
		{
			name: "envelope without method",
			raw: []byte(`{"params":{"result":{"number":"0x1","timestamp":"0x2","gasUsed":"0x3",` +
				`"gasLimit":"0x4","miner":"m"}}}`),
			want: domain.BlockHead{Number: 1, Timestamp: 2, GasUsed: 3, GasLimit: 4, Miner: "m"},
		},
		{
			name: "extra fields ignored",
			raw: headMessage(`{"number":"0x1","timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4",` +
				`"miner":"m","baseFeePerGas":"0x7","logsBloom":"0x00"}`),
			want: domain.BlockHead{Number: 1, Timestamp: 2, GasUsed: 3, GasLimit: 4, Miner: "m"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewDecoder().Decode(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecoder_DecodeFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"not json", []byte(`not json`)},
		{"subscription ack", []byte(`{"jsonrpc":"2.0","id":1,"result":"0xsub"}`)},
		{"null result", []byte(`{"params":{"result":null}}`)},
		{"result not object", headMessage(`"0x1"`)},
		{"missing number", headMessage(`{"timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`)},
		{"missing timestamp", headMessage(`{"number":"0x1","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`)},
		{"missing gasUsed", headMessage(`{"number":"0x1","timestamp":"0x2","gasLimit":"0x4","miner":"m"}`)},
		{"missing gasLimit", headMessage(`{"number":"0x1","timestamp":"0x2","gasUsed":"0x3","miner":"m"}`)},
		{"missing miner", headMessage(`{"number":"0x1","timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4"}`)},
		{"empty miner", headMessage(`{"number":"0x1","timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4","miner":""}`)},
		{"missing prefix", headMessage(`{"number":"10","timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`)},
		{"not hex", headMessage(`{"number":"0xzz","timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`)},
		{"empty quantity", headMessage(`{"number":"0x","timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`)},
		{"numeric instead of string", headMessage(`{"number":1,"timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`)},
		{"overflow", headMessage(`{"number":"0x1ffffffffffffffff","timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`)},
		{"timestamp beyond int64", headMessage(`{"number":"0x1","timestamp":"0xffffffffffffffff","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder().Decode(tt.raw)
			if apperror.GetCode(err) != apperror.CodeDecodeFailed {
				t.Fatalf("expected DECODE_FAILED, got %v", err)
			}
			if !apperror.IsRecoverableInStream(err) {
				t.Error("decode failures must be recoverable in stream")
			}
		})
	}
}

func TestWrapNotification_RoundTripsThroughDecoder(t *testing.T) {
	raw, err := wrapNotification("0xsub", []byte(`{"number":"0x1","timestamp":"0x2","gasUsed":"0x3","gasLimit":"0x4","miner":"m"}`))
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}

	head, err := NewDecoder().Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if head.Number != 1 || head.Miner != "m" {
		t.Errorf("unexpected head %+v", head)
	}
}
