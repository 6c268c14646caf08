package runtime

import "testing"

func TestRegistryPutGetDelete(t *testing.T) {
	r := New[string]()
	key := r.Put("hello")

	got, ok := r.Get(key)
	if !ok || got != "hello" {
		t.Fatalf("Get() = (%q, %v), want (\"hello\", true)", got, ok)
	}

	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	removed, ok := r.Delete(key)
	if !ok || removed != "hello" {
		t.Fatalf("Delete() = (%q, %v), want (\"hello\", true)", removed, ok)
	}
	if r.Len() != 0 {
		t.Errorf("Len() after Delete = %d, want 0", r.Len())
	}

	if _, ok := r.Get(key); ok {
		t.Error("Get() after Delete found a value, want none")
	}
}

func TestRegistryCountRescans(t *testing.T) {
	r := New[int]()
	k1 := r.Put(1)
	k2 := r.Put(2)
	r.Put(3)

	count := r.Count(func(v int) bool { return v%2 == 1 })
	if count != 2 {
		t.Errorf("Count(odd) = %d, want 2", count)
	}

	r.PutAt(k1, 4)
	count = r.Count(func(v int) bool { return v%2 == 1 })
	if count != 1 {
		t.Errorf("Count(odd) after mutation = %d, want 1 (stale cache would still say 2)", count)
	}

	r.Delete(k2)
	count = r.Count(func(v int) bool { return true })
	if count != 2 {
		t.Errorf("Count(all) after delete = %d, want 2", count)
	}
}

func TestRegistryRangeStopsEarly(t *testing.T) {
	r := New[int]()
	for i := 0; i < 10; i++ {
		r.Put(i)
	}

	visited := 0
	r.Range(func(_ Key, _ int) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Errorf("Range visited %d entries, want 3", visited)
	}
}
