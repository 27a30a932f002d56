package evidence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/marketcore/internal/domain"
)

const txHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

func TestHash_IndependentOfKeyOrder(t *testing.T) {
	a := []byte(`{"source":"api","signature":"0xabc","data":{"b":2,"a":[1,{"y":true,"x":null}]},"url":"https://x/?a=1&b=<2>"}`)
	b := []byte(`{
		"url": "https://x/?a=1&b=<2>",
		"data": {"a": [1, {"x": null, "y": true}], "b": 2},
		"signature": "0xabc",
		"source": "api"
	}`)
	ha, err := Hash(a)
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if ha != hb {
		t.Fatalf("hashes differ: %s vs %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Fatalf("hash length %d, want 64 hex chars", len(ha))
	}
}

func TestHash_SensitiveToValues(t *testing.T) {
	ha, _ := Hash([]byte(`{"source":"manual","data":{"score":1}}`))
	hb, _ := Hash([]byte(`{"source":"manual","data":{"score":2}}`))
	if ha == hb {
		t.Fatal("different payloads hashed equal")
	}
}

func TestCanonicalize(t *testing.T) {
	v, err := decode([]byte(`{"z":1.50,"a":{"d":"<&>","c":[true,false,null]}}`))
	if err != nil {
		t.Fatal(err)
	}
	got, err := Canonicalize(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":{"c":[true,false,null],"d":"<&>"},"z":1.50}`
	if string(got) != want {
		t.Fatalf("got %s\nwant %s", got, want)
	}
}

func TestParse_Rejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"array", `[1,2]`},
		{"missing source", `{"data":1}`},
		{"unknown source", `{"source":"twitter"}`},
		{"source not string", `{"source":7}`},
		{"bad address", `{"source":"chainlink","oracleAddress":"0x123"}`},
		{"short tx hash", `{"source":"onchain","transactionHash":"0xdead"}`},
		{"timestamp string", `{"source":"manual","timestamp":"yesterday"}`},
		{"trailing data", `{"source":"manual"} {}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			if !errors.Is(err, domain.ErrInvalidEvidence) {
				t.Fatalf("got %v, want ErrInvalidEvidence", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Reason == "" {
				t.Fatalf("expected a ValidationError with a reason, got %T", err)
			}
		})
	}
}

func TestParse_Variants(t *testing.T) {
	ev, err := Parse([]byte(`{"source":"onchain","transactionHash":"` + txHash + `","timestamp":1700000000}`))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := ev.Proof.(OnchainProof)
	if !ok || p.TransactionHash != txHash {
		t.Fatalf("proof = %#v", ev.Proof)
	}
	if ev.Timestamp == nil || ev.Timestamp.String() != "1700000000" {
		t.Fatalf("timestamp = %v", ev.Timestamp)
	}

	ev, err = Parse([]byte(`{"source":"api","signature":"0x01","url":"https://feed"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ap, ok := ev.Proof.(APIProof); !ok || ap.URL != "https://feed" || ap.Signature != "0x01" {
		t.Fatalf("proof = %#v", ev.Proof)
	}
}

func TestValidate_ModeRules(t *testing.T) {
	cases := []struct {
		name string
		mode domain.ResolutionMode
		raw  string
		ok   bool
	}{
		{"oracle manual", domain.ResolutionModeOracle, `{"source":"manual"}`, false},
		{"authority manual", domain.ResolutionModeAuthority, `{"source":"manual"}`, true},
		{"oracle api unsigned", domain.ResolutionModeOracle, `{"source":"api","data":{}}`, false},
		{"oracle api blank signature", domain.ResolutionModeOracle, `{"source":"api","signature":"  "}`, false},
		{"oracle api signed", domain.ResolutionModeOracle, `{"source":"api","signature":"0xff"}`, true},
		{"authority api unsigned", domain.ResolutionModeAuthority, `{"source":"api"}`, true},
		{"oracle onchain no tx", domain.ResolutionModeOracle, `{"source":"onchain"}`, false},
		{"oracle onchain tx", domain.ResolutionModeOracle, `{"source":"onchain","transactionHash":"` + txHash + `"}`, true},
		{"oracle chainlink no address", domain.ResolutionModeOracle, `{"source":"chainlink"}`, false},
		{"oracle chainlink address", domain.ResolutionModeOracle, `{"source":"chainlink","oracleAddress":"0x47Ac0Fb4F2D84898e4D9E7b4DaB3C24507a6D503"}`, true},
		{"oracle missing", domain.ResolutionModeOracle, ``, false},
		{"authority null", domain.ResolutionModeAuthority, `null`, false},
		{"opinion missing", domain.ResolutionModeOpinion, ``, true},
		{"legacy missing", domain.ResolutionModeLegacy, ``, true},
		{"opinion bad source", domain.ResolutionModeOpinion, `{"source":"rumour"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Validate([]byte(tc.raw), tc.mode)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if !errors.Is(err, domain.ErrInvalidEvidence) {
					t.Fatalf("got %v, want ErrInvalidEvidence", err)
				}
				return
			}
			if tc.raw == "" {
				if res.Present || res.Hash != "" {
					t.Fatalf("absent evidence produced %+v", res)
				}
				return
			}
			if !res.Present || len(res.Hash) != 64 || res.Evidence == nil {
				t.Fatalf("result = %+v", res)
			}
		})
	}
}

func TestValidate_HashMatchesHash(t *testing.T) {
	raw := []byte(`{"source":"manual","data":{"winner":"yes"}}`)
	res, err := Validate(raw, domain.ResolutionModeAuthority)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := Hash(raw)
	if res.Hash != h || res.Source != SourceManual {
		t.Fatalf("result %+v, hash %s", res, h)
	}
}

type slowVerifier struct{ delay time.Duration }

func (s slowVerifier) Verify(ctx context.Context, _ *Evidence) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestVerifyWithin_Timeout(t *testing.T) {
	ev, err := Parse([]byte(`{"source":"api","signature":"0x01"}`))
	if err != nil {
		t.Fatal(err)
	}
	err = VerifyWithin(context.Background(), slowVerifier{delay: time.Second}, ev, 10*time.Millisecond)
	if !errors.Is(err, domain.ErrInvalidEvidence) {
		t.Fatalf("timeout should reject evidence, got %v", err)
	}
	if err := VerifyWithin(context.Background(), slowVerifier{}, ev, time.Second); err != nil {
		t.Fatalf("fast verifier: %v", err)
	}
}

func TestPresenceVerifier(t *testing.T) {
	ev, _ := Parse([]byte(`{"source":"api"}`))
	if err := (PresenceVerifier{}).Verify(context.Background(), ev); !errors.Is(err, domain.ErrInvalidEvidence) {
		t.Fatalf("unsigned api evidence passed: %v", err)
	}
	ev, _ = Parse([]byte(`{"source":"manual"}`))
	if err := (PresenceVerifier{}).Verify(context.Background(), ev); err != nil {
		t.Fatalf("manual: %v", err)
	}
}
