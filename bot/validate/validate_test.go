package validate

import "testing"

func TestName(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Иван Петров", "Иван Петров", true},
		{"  Anna-Maria  ", "Anna-Maria", true},
		{"Ёлкин", "Ёлкин", true},
		{"ab", "", false},
		{"Иван123", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, msg := Name(c.in)
		if (msg == "") != c.ok {
			t.Errorf("Name(%q): ok=%v, want %v", c.in, msg == "", c.ok)
			continue
		}
		if c.ok && got != c.want {
			t.Errorf("Name(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+7 (999) 123-45-67", "79991234567", true},
		{"89991234567", "89991234567", true},
		{"123", "", false},
		{"7999123456789012345", "", false},
		{"phone", "", false},
	}
	for _, c := range cases {
		got, msg := Phone(c.in)
		if (msg == "") != c.ok {
			t.Errorf("Phone(%q): ok=%v, want %v", c.in, msg == "", c.ok)
			continue
		}
		if c.ok && got != c.want {
			t.Errorf("Phone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestTruck(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"a123bc", "A123BC", true},
		{"  а123вс 77  ", "А123ВС 77", true},
		{"AB", "", false},
		{"A123!", "", false},
	}
	for _, c := range cases {
		got, msg := Truck(c.in)
		if (msg == "") != c.ok {
			t.Errorf("Truck(%q): ok=%v, want %v", c.in, msg == "", c.ok)
			continue
		}
		if c.ok && got != c.want {
			t.Errorf("Truck(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestWeight(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		msg  string
	}{
		{"15000", 15000, ""},
		{"12 500,5", 12500.5, ""},
		{"0", 0, ""},
		{"abc", 0, MsgWeightNotANumber},
		{"", 0, MsgWeightNotANumber},
		{"-50", 0, MsgWeightNegative},
	}
	for _, c := range cases {
		got, msg := Weight(c.in)
		if msg != c.msg {
			t.Errorf("Weight(%q): msg %q, want %q", c.in, msg, c.msg)
			continue
		}
		if msg == "" && got != c.want {
			t.Errorf("Weight(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestWeightFailureKindsDistinct(t *testing.T) {
	_, notNum := Weight("dunno")
	_, neg := Weight("-1")
	if notNum == neg {
		t.Fatal("non-numeric and negative weight must produce distinct messages")
	}
}
