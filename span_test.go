package apmz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/zoobzio/apmz/ext"
)

func TestActiveSpanSetTag(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op")
	span.SetTag("user.id", "123")
	span.SetTags(map[Tag]string{"a": "1", "b": "2"})

	for k, want := range map[Tag]string{"user.id": "123", "a": "1", "b": "2"} {
		if got, ok := span.GetTag(k); !ok || got != want {
			t.Errorf("Expected tag %s=%s, got %q (present=%v)", k, want, got, ok)
		}
	}
	if _, ok := span.GetTag("missing"); ok {
		t.Error("Expected missing tag to be absent")
	}
}

func TestActiveSpanGetTagEmpty(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op")
	if _, ok := span.GetTag("anything"); ok {
		t.Error("Expected no tags on a fresh span")
	}
}

func TestActiveSpanSetError(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op")
	if span.IsError() {
		t.Fatal("Expected fresh span not to be an error")
	}

	span.SetError(errors.New("upstream failed"))
	if !span.IsError() {
		t.Error("Expected span to be marked as error")
	}
	if msg, _ := span.GetTag(ext.ErrorMsg); msg != "upstream failed" {
		t.Errorf("Expected error message tag, got %q", msg)
	}

	_, other := tracer.StartSpan(context.Background(), "op")
	other.SetErrorf("status %d", 503)
	if msg, _ := other.GetTag(ext.ErrorMsg); msg != "status 503" {
		t.Errorf("Expected formatted error message, got %q", msg)
	}

	_, bare := tracer.StartSpan(context.Background(), "op")
	bare.SetError(nil)
	if !bare.IsError() {
		t.Error("Expected nil error to still mark the span")
	}
	if _, ok := bare.GetTag(ext.ErrorMsg); ok {
		t.Error("Expected no message for nil error")
	}
}

func TestActiveSpanFinish(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	collector := NewCollector("finish", 10)
	collector.SetSyncMode(true)
	tracer.AddCollector("finish", collector)

	_, span := tracer.StartSpan(context.Background(), "op")
	span.Finish()
	span.Finish()

	// Finished spans ignore further changes.
	span.SetTag("late", "value")
	span.SetError(errors.New("late"))

	spans := collector.Export()
	if len(spans) != 1 {
		t.Fatalf("Expected exactly one collected span, got %d", len(spans))
	}
	if spans[0].EndTime.IsZero() {
		t.Error("Expected EndTime to be set")
	}
	if _, ok := spans[0].Tags["late"]; ok || spans[0].Error {
		t.Error("Expected finished span to be immutable")
	}
}

func TestConcurrentTagSetting(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("g%d.k%d", i, j)
				span.SetTag(key, "v")
				span.GetTag(key)
			}
		}(i)
	}
	wg.Wait()

	if got := len(span.span.Tags); got != 1000 {
		t.Errorf("Expected 1000 tags, got %d", got)
	}
}

func TestActiveSpanContext(t *testing.T) {
	tracer := New()
	defer tracer.Close()

	_, span := tracer.StartSpan(context.Background(), "op")
	ctx := span.Context(context.Background())

	if GetSpan(ctx) != span.span {
		t.Error("Expected span in derived context")
	}
}

func TestGetSpanFromContext(t *testing.T) {
	if GetSpan(context.Background()) != nil {
		t.Error("Expected nil span from empty context")
	}
	//nolint:staticcheck // nil context is handled on purpose
	if GetSpan(nil) != nil {
		t.Error("Expected nil span from nil context")
	}

	// A foreign value under a string key must not collide.
	//nolint:staticcheck // collision check
	ctx := context.WithValue(context.Background(), "apmz", "not a bundle")
	if GetSpan(ctx) != nil {
		t.Error("Expected string key not to collide with the bundle key")
	}
}
