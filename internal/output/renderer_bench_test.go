package output

import (
	"bytes"
	"testing"
)

// Benchmark rendering performance

func BenchmarkTextRenderer_RenderAdvise(b *testing.B) {
	report := adviseReport()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		r := &TextRenderer{w: &buf}
		r.RenderAdvise(report)
	}
}

func BenchmarkPlainRenderer_RenderAdvise(b *testing.B) {
	report := adviseReport()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		r := &PlainRenderer{w: &buf}
		r.RenderAdvise(report)
	}
}

func BenchmarkJSONRenderer_RenderAdvise(b *testing.B) {
	report := adviseReport()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		r := &JSONRenderer{w: &buf}
		r.RenderAdvise(report)
	}
}

func BenchmarkMarkdownRenderer_RenderAdvise(b *testing.B) {
	report := adviseReport()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		r := &MarkdownRenderer{w: &buf}
		r.RenderAdvise(report)
	}
}

func BenchmarkTextRenderer_RenderStatus(b *testing.B) {
	report := statusReport()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		r := &TextRenderer{w: &buf}
		r.RenderStatus(report)
	}
}

func BenchmarkJSONRenderer_RenderStatus(b *testing.B) {
	report := statusReport()
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		var buf bytes.Buffer
		r := &JSONRenderer{w: &buf}
		r.RenderStatus(report)
	}
}

// Benchmark formatter functions

func BenchmarkFormatNumber(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = formatNumber(1234567890)
	}
}

// Benchmark concurrent rendering

func BenchmarkJSONRenderer_Concurrent(b *testing.B) {
	report := adviseReport()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			var buf bytes.Buffer
			r := &JSONRenderer{w: &buf}
			r.RenderAdvise(report)
		}
	})
}
