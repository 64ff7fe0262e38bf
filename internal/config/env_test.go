package config

import (
	"strings"
	"testing"
)

func TestEnv(t *testing.T) {
	t.Run("getenv falls back on empty", func(t *testing.T) {
		t.Setenv("PORT", "")
		if got := Getenv("PORT", "8081"); got != "8081" {
			t.Errorf("expected fallback, got %q", got)
		}
		t.Setenv("PORT", "9000")
		if got := Getenv("PORT", "8081"); got != "9000" {
			t.Errorf("expected 9000, got %q", got)
		}
	})

	t.Run("require reports every missing key", func(t *testing.T) {
		t.Setenv("ORDERS_SERVICE_URL", "http://orders:8081")
		t.Setenv("INVENTORY_SERVICE_URL", "")
		t.Setenv("EMAIL_SERVICE_URL", "")

		_, err := Require("ORDERS_SERVICE_URL", "INVENTORY_SERVICE_URL", "EMAIL_SERVICE_URL")
		if err == nil {
			t.Fatal("expected error")
		}
		for _, want := range []string{"INVENTORY_SERVICE_URL", "EMAIL_SERVICE_URL"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("expected %s in %v", want, err)
			}
		}
		if strings.Contains(err.Error(), "ORDERS_SERVICE_URL") {
			t.Errorf("set key reported missing: %v", err)
		}

		t.Setenv("INVENTORY_SERVICE_URL", "http://inventory:8082")
		values, err := Require("ORDERS_SERVICE_URL", "INVENTORY_SERVICE_URL")
		if err != nil {
			t.Fatalf("Require: %v", err)
		}
		if values[1] != "http://inventory:8082" {
			t.Errorf("unexpected values %v", values)
		}
	})

	t.Run("list trims and drops blanks", func(t *testing.T) {
		t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092,")
		got := List("KAFKA_BROKERS")
		if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
			t.Errorf("unexpected brokers %v", got)
		}

		t.Setenv("KAFKA_BROKERS", "")
		if got := List("KAFKA_BROKERS"); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})
}
