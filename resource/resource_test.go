package resource

import (
	"reflect"
	"testing"
	"time"

	"github.com/vinayprograms/resourcekit/errors"
)

func sample() *Resource {
	updated := time.Date(2026, 3, 2, 10, 30, 0, 123456789, time.UTC)
	return &Resource{
		ID: "0f8fad5b-d9cb-469f-a165-70867728950e",
		Definition: Definition{
			Name:     "w1",
			Type:     TypeWorker,
			Address:  "10.0.0.5:9000",
			CPUCores: 4,
			MemoryGB: 8,
			Labels:   map[string]string{"zone": "eu-1", "tier": "gold"},
			Capabilities: map[string]any{
				"gpu":     true,
				"runtime": "go1.24",
			},
		},
		Status:    StatusOnline,
		AddedAt:   time.Date(2026, 3, 1, 9, 0, 0, 987654321, time.UTC),
		AddedBy:   "alice",
		UpdatedAt: &updated,
		HealthHistory: []HealthCheckResult{
			{Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Healthy: true, LatencyMS: 1.5},
			{Timestamp: time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC), Healthy: false, LatencyMS: 3, Reason: "connection refused"},
		},
	}
}

// --- Types and statuses ---

func TestTypeValid(t *testing.T) {
	for _, typ := range Types() {
		if !typ.Valid() {
			t.Errorf("%q should be valid", typ)
		}
	}
	if Type("gpu").Valid() {
		t.Error("gpu should not be a valid type")
	}
	if Status("paused").Valid() {
		t.Error("paused should not be a valid status")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusOnline, StatusDraining, true},
		{StatusDraining, StatusOnline, true},
		{StatusDraining, StatusOffline, true},
		{StatusOnline, StatusUnhealthy, true},
		{StatusUnhealthy, StatusOnline, true},
		{StatusUnhealthy, StatusDraining, true},
		{StatusOnline, StatusOffline, true},
		{StatusDraining, StatusUnhealthy, false},
		{StatusOffline, StatusOnline, false},
		{StatusOffline, StatusDraining, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

// --- Validation ---

func TestValidate(t *testing.T) {
	valid := Definition{Name: "w1", Type: TypeWorker, Address: "localhost:9000"}
	if err := Validate(valid); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	tests := []struct {
		name  string
		mod   func(*Definition)
		field string
	}{
		{"empty name", func(d *Definition) { d.Name = "" }, "name"},
		{"bad type", func(d *Definition) { d.Type = "gpu" }, "type"},
		{"empty type", func(d *Definition) { d.Type = "" }, "type"},
		{"empty address", func(d *Definition) { d.Address = "" }, "address"},
		{"negative cpu", func(d *Definition) { d.CPUCores = -1 }, "cpu_cores"},
		{"negative memory", func(d *Definition) { d.MemoryGB = -0.5 }, "memory_gb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid
			tt.mod(&def)
			err := Validate(def)
			if !errors.Is(err, errors.ErrCodeValidation) {
				t.Fatalf("Validate() = %v, want validation error", err)
			}
			if got := errors.As(err).Metadata()[errors.MetaField]; got != tt.field {
				t.Errorf("field = %q, want %q", got, tt.field)
			}
		})
	}
}

// --- Health history ---

func TestRecordHealthEvictsOldest(t *testing.T) {
	r := &Resource{}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxHealthHistory+1; i++ {
		r.RecordHealth(HealthCheckResult{Timestamp: base.Add(time.Duration(i) * time.Second), Healthy: true})
	}
	if len(r.HealthHistory) != MaxHealthHistory {
		t.Fatalf("len(HealthHistory) = %d, want %d", len(r.HealthHistory), MaxHealthHistory)
	}
	if !r.HealthHistory[0].Timestamp.Equal(base.Add(time.Second)) {
		t.Errorf("oldest = %v, want the second entry", r.HealthHistory[0].Timestamp)
	}
	last, ok := r.LastHealth()
	if !ok || !last.Timestamp.Equal(base.Add(MaxHealthHistory*time.Second)) {
		t.Errorf("LastHealth() = %v, %v", last.Timestamp, ok)
	}
}

func TestLastHealthEmpty(t *testing.T) {
	if _, ok := (&Resource{}).LastHealth(); ok {
		t.Error("LastHealth() on empty history should report false")
	}
}

// --- Read helpers ---

func TestReadHelpers(t *testing.T) {
	r := sample()
	if !r.IsWorker() || !r.IsAvailable() {
		t.Error("online worker should be available")
	}
	r.Status = StatusDraining
	if r.IsAvailable() {
		t.Error("draining worker should not be available")
	}
	if !r.HasLabel("zone", "eu-1") || r.HasLabel("zone", "us-1") || r.HasLabel("missing", "") {
		t.Error("HasLabel mismatch")
	}
}

func TestHasCapability(t *testing.T) {
	r := &Resource{Definition: Definition{Capabilities: map[string]any{
		"formats":   []any{"parquet", "csv"},
		"ops":       []string{"get", "put"},
		"max_conns": float64(64),
		"tls":       true,
	}}}

	tests := []struct {
		name  string
		cap   string
		value any
		want  bool
	}{
		{"presence", "formats", nil, true},
		{"absent", "gpu", nil, false},
		{"list contains", "formats", "csv", true},
		{"list missing", "formats", "avro", false},
		{"string list", "ops", "put", true},
		{"number from int", "max_conns", 64, true},
		{"number mismatch", "max_conns", 32, false},
		{"bool", "tls", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.HasCapability(tt.cap, tt.value); got != tt.want {
				t.Errorf("HasCapability(%q, %v) = %v, want %v", tt.cap, tt.value, got, tt.want)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := sample()
	r.Capabilities["formats"] = []any{"csv"}
	c := r.Clone()

	c.Labels["zone"] = "changed"
	c.Capabilities["formats"].([]any)[0] = "changed"
	c.HealthHistory[0].Healthy = false
	*c.UpdatedAt = time.Time{}

	if r.Labels["zone"] != "eu-1" {
		t.Error("labels aliased")
	}
	if r.Capabilities["formats"].([]any)[0] != "csv" {
		t.Error("capability list aliased")
	}
	if !r.HealthHistory[0].Healthy {
		t.Error("history aliased")
	}
	if r.UpdatedAt.IsZero() {
		t.Error("updated_at aliased")
	}
	if (*Resource)(nil).Clone() != nil {
		t.Error("Clone(nil) should be nil")
	}
}

// --- Codec ---

func TestMarshalRoundTrip(t *testing.T) {
	r := sample()
	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, r)
	}
	if !got.AddedAt.Equal(r.AddedAt) {
		t.Errorf("AddedAt = %v, want %v", got.AddedAt, r.AddedAt)
	}
}

func TestUnmarshalRejectsBadRecords(t *testing.T) {
	tests := map[string]string{
		"not json":   `{`,
		"missing id": `{"name":"w1","status":"online"}`,
		"bad status": `{"id":"x","status":"paused"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(raw)); err == nil {
				t.Error("Unmarshal should fail")
			}
		})
	}
}

func TestNormalizeRoundTripsTypedCapabilities(t *testing.T) {
	r := sample()
	r.Labels = map[string]string{}
	r.Capabilities = map[string]any{
		"max_jobs": 4,
		"formats":  []string{"parquet", "csv"},
		"limits":   map[string]int{"mem": 2},
	}

	def, err := r.Definition.Normalize()
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	r.Definition = def

	if r.Labels != nil {
		t.Errorf("Labels = %#v, want nil", r.Labels)
	}
	if _, ok := r.Capabilities["formats"].([]any); !ok {
		t.Errorf("formats = %T, want []any", r.Capabilities["formats"])
	}
	if r.Capabilities["max_jobs"] != float64(4) {
		t.Errorf("max_jobs = %#v, want float64(4)", r.Capabilities["max_jobs"])
	}

	data, err := Marshal(r)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", got.Capabilities, r.Capabilities)
	}
	if !r.HasCapability("formats", "csv") || !r.HasCapability("max_jobs", 4) {
		t.Error("normalized capabilities no longer match their original values")
	}
}

func TestNormalizeRejectsUnencodable(t *testing.T) {
	def := Definition{Capabilities: map[string]any{"hook": func() {}}}
	if _, err := def.Normalize(); !errors.Is(err, errors.ErrCodeValidation) {
		t.Errorf("Normalize() = %v, want validation error", err)
	}
	if _, err := (Update{Capabilities: map[string]any{"ch": make(chan int)}}).Normalize(); !errors.Is(err, errors.ErrCodeValidation) {
		t.Errorf("Update.Normalize() = %v, want validation error", err)
	}
}

func TestUpdateNormalizeEmptyClears(t *testing.T) {
	u, err := Update{Capabilities: map[string]any{}}.Normalize()
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}
	r := sample()
	diff := u.Apply(r)
	if _, ok := diff["capabilities"]; !ok || r.Capabilities != nil {
		t.Errorf("capabilities = %#v, diff = %v; want cleared", r.Capabilities, diff)
	}
}

// --- Updates ---

func TestUpdateApplyPartial(t *testing.T) {
	r := sample()
	before := r.Clone()
	name := "w1-renamed"
	cores := 16

	diff := Update{Name: &name, CPUCores: &cores}.Apply(r)

	if len(diff) != 2 {
		t.Fatalf("len(diff) = %d, want 2: %v", len(diff), diff)
	}
	if diff["name"].Old != "w1" || diff["name"].New != name {
		t.Errorf("name diff = %+v", diff["name"])
	}
	if r.Name != name || r.CPUCores != cores {
		t.Errorf("fields not applied: %q %d", r.Name, r.CPUCores)
	}
	if r.Address != before.Address || r.MemoryGB != before.MemoryGB || !reflect.DeepEqual(r.Labels, before.Labels) {
		t.Error("unspecified fields changed")
	}
	if r.ID != before.ID || r.Status != before.Status || !r.AddedAt.Equal(before.AddedAt) || r.AddedBy != before.AddedBy {
		t.Error("immutable fields changed")
	}
}

func TestUpdateApplyNoop(t *testing.T) {
	r := sample()
	same := r.Name
	if diff := (Update{Name: &same, Labels: map[string]string{"zone": "eu-1", "tier": "gold"}}).Apply(r); !diff.Empty() {
		t.Errorf("diff = %v, want empty", diff)
	}
}

func TestUpdateValidate(t *testing.T) {
	empty := ""
	bad := Type("gpu")
	neg := -2
	for name, u := range map[string]Update{
		"empty name":    {Name: &empty},
		"bad type":      {Type: &bad},
		"empty address": {Address: &empty},
		"negative cpu":  {CPUCores: &neg},
	} {
		if err := u.Validate(); !errors.Is(err, errors.ErrCodeValidation) {
			t.Errorf("%s: Validate() = %v, want validation error", name, err)
		}
	}
	if err := (Update{}).Validate(); err != nil {
		t.Errorf("empty update Validate() = %v", err)
	}
}
