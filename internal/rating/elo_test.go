package rating

import "testing"

func TestService_Update_EqualRatingsDecisive(t *testing.T) {
	svc := NewService(32, false)

	a, b := svc.Update(1200, 0, 1200, 0, Win)

	if a.Delta <= 0 {
		t.Errorf("winner should gain rating, got delta %v", a.Delta)
	}
	if b.Delta >= 0 {
		t.Errorf("loser should lose rating, got delta %v", b.Delta)
	}
	if a.Delta != -b.Delta {
		t.Errorf("equal ratings should be zero-sum, got a=%v b=%v", a.Delta, b.Delta)
	}
}

func TestService_Update_Draw(t *testing.T) {
	svc := NewService(32, false)

	a, b := svc.Update(1500, 10, 1500, 10, Draw)

	if a.Delta != 0 || b.Delta != 0 {
		t.Errorf("equal ratings drawing should have zero change, got a=%v b=%v", a.Delta, b.Delta)
	}
}

func TestService_Update_FlatKFactorByDefault(t *testing.T) {
	svc := NewService(32, false)

	a1, _ := svc.Update(1200, 0, 1200, 500, Win)
	a2, _ := svc.Update(1200, 0, 1200, 0, Win)

	if a1.Delta != a2.Delta {
		t.Errorf("default mode must not vary K by games played: %v != %v", a1.Delta, a2.Delta)
	}
}

func TestService_Update_ProvisionalKFactor(t *testing.T) {
	svc := NewService(32, true)

	newbie, veteran := svc.Update(1200, 5, 1200, 50, Win)

	if newbie.Delta <= -veteran.Delta {
		t.Errorf("provisional newbie should gain more than an established opponent loses: newbie=%v veteran=%v", newbie.Delta, veteran.Delta)
	}
}

func TestService_KFactorFor(t *testing.T) {
	svc := NewService(32, true)

	cases := []struct {
		games int
		want  float64
	}{
		{0, 40}, {9, 40}, {10, 32}, {19, 32}, {20, 24}, {100, 24},
	}
	for _, c := range cases {
		if got := svc.kFactorFor(c.games); got != c.want {
			t.Errorf("kFactorFor(%d) = %v, want %v", c.games, got, c.want)
		}
	}
}
