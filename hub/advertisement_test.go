package hub

import "testing"

func TestDiscriminatePrefersOpOverRegisteredOverNormal(t *testing.T) {
	tests := []struct {
		name               string
		st                 SelfStatus
		normal, reg, op    int
	}{
		{"plain", SelfStatus{}, 1, 0, 0},
		{"registered", SelfStatus{IsReg: true}, 0, 1, 0},
		{"op", SelfStatus{IsOp: true}, 0, 0, 1},
		{"op and registered both set, op wins", SelfStatus{IsOp: true, IsReg: true}, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, r, o := discriminate(tt.st)
			if n != tt.normal || r != tt.reg || o != tt.op {
				t.Errorf("discriminate(%+v) = %d/%d/%d, want %d/%d/%d", tt.st, n, r, o, tt.normal, tt.reg, tt.op)
			}
		})
	}
}

func TestBuildAdvertisementSumsAcrossSessions(t *testing.T) {
	sessions := []SelfStatus{
		{Validated: true},               // normal
		{Validated: true, IsReg: true},  // registered
		{Validated: true, IsOp: true},   // op
		{Validated: true, IsOp: true},   // op
	}
	adv := BuildAdvertisement(sessions, SelfStatus{Validated: true}, 3, 1000, "desc", "DSL", "a@b.c", true)

	if adv.HubsNormal != 1 {
		t.Errorf("HubsNormal = %d, want 1", adv.HubsNormal)
	}
	if adv.HubsRegistered != 1 {
		t.Errorf("HubsRegistered = %d, want 1", adv.HubsRegistered)
	}
	if adv.HubsOp != 2 {
		t.Errorf("HubsOp = %d, want 2", adv.HubsOp)
	}
	if adv.Slots != 3 || adv.ShareSize != 1000 || adv.Description != "desc" || adv.Connection != "DSL" || adv.Email != "a@b.c" || !adv.Active {
		t.Errorf("passthrough fields not preserved: %+v", adv)
	}
}

func TestBuildAdvertisementCountsUnvalidatedBuildingSessionAsNormal(t *testing.T) {
	adv := BuildAdvertisement(nil, SelfStatus{Validated: false}, 1, 0, "", "", "", false)
	if adv.HubsNormal != 1 {
		t.Errorf("HubsNormal = %d, want 1 (unvalidated building session counts as normal)", adv.HubsNormal)
	}

	adv2 := BuildAdvertisement(nil, SelfStatus{Validated: true}, 1, 0, "", "", "", false)
	if adv2.HubsNormal != 0 {
		t.Errorf("HubsNormal = %d, want 0 (already validated, not double-counted)", adv2.HubsNormal)
	}
}

func TestEqualWatchedNilSafety(t *testing.T) {
	a := &Advertisement{Slots: 1}
	if equalWatched(nil, a) || equalWatched(a, nil) || equalWatched(nil, nil) {
		t.Error("equalWatched with a nil operand must be false")
	}
}

func TestEqualWatchedFieldComparison(t *testing.T) {
	a := &Advertisement{Slots: 2, Description: "x", HubsNormal: 1}
	b := &Advertisement{Slots: 2, Description: "x", HubsNormal: 1}
	if !equalWatched(a, b) {
		t.Error("equalWatched(a, b) = false, want true for field-identical advertisements")
	}

	c := &Advertisement{Slots: 3, Description: "x", HubsNormal: 1}
	if equalWatched(a, c) {
		t.Error("equalWatched(a, c) = true, want false (Slots differ)")
	}
}
