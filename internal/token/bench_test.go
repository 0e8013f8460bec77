package token

import (
	"testing"

	"licensegate/internal/shared/testutil"
)

func BenchmarkEncode(b *testing.B) {
	codec := MustNewCodec(testSecret, HS256)
	claims := sampleClaims()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.Encode(claims); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkValidate(b *testing.B) {
	v := newTestValidator(b, testutil.NewFakeClock(testNow))
	tok := encode(b, HS256, testSecret, nil)

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := v.Validate(tok, "fp-abc"); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkValidateRejectsTampered(b *testing.B) {
	v := newTestValidator(b, testutil.NewFakeClock(testNow))
	tok := encode(b, HS256, []byte("other-secret-0123456789abcdef"), nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := v.Validate(tok, "fp-abc"); err == nil {
			b.Fatal("tampered token accepted")
		}
	}
}
