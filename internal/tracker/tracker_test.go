package tracker

import "testing"

func TestTrackCreationAndFindByName(t *testing.T) {
	tr := New()
	tr.TrackCreation(TrackedObject{ObjectType: "scope", Name: "Headquarters", ID: "s-1"})

	obj, ok := tr.FindByName("headquarters")
	if !ok {
		t.Fatal("期望按小写名称命中")
	}
	if obj.ID != "s-1" || obj.ObjectType != "scope" {
		t.Fatalf("命中对象 = %+v", obj)
	}
	if _, ok := tr.FindByName("unknown"); ok {
		t.Fatal("不应命中未跟踪的名称")
	}
}

func TestFindByNameLastWriteWins(t *testing.T) {
	tr := New()
	tr.TrackCreation(TrackedObject{ObjectType: "asset", Name: "Server", ID: "a-1"})
	tr.TrackCreation(TrackedObject{ObjectType: "asset", Name: "SERVER", ID: "a-2"})

	obj, ok := tr.FindByName("server")
	if !ok || obj.ID != "a-2" {
		t.Fatalf("obj = %+v, 期望后写覆盖前写", obj)
	}
	if tr.Count() != 2 {
		t.Fatalf("Count = %d, 创建历史应只追加", tr.Count())
	}
}

func TestFindByNames(t *testing.T) {
	tr := New()
	tr.TrackCreation(TrackedObject{ObjectType: "scope", Name: "HQ", ID: "s-1"})
	tr.TrackCreation(TrackedObject{ObjectType: "asset", Name: "Laptop", ID: "a-1"})

	found := tr.FindByNames([]string{"hq", "missing", "LAPTOP"})
	if len(found) != 2 {
		t.Fatalf("命中数量 = %d, 期望 2", len(found))
	}
	if found[0].ID != "s-1" || found[1].ID != "a-1" {
		t.Fatalf("found = %+v", found)
	}
}

func TestRecentAndByType(t *testing.T) {
	tr := New()
	for i := 0; i < 15; i++ {
		objectType := "asset"
		if i%2 == 0 {
			objectType = "control"
		}
		tr.TrackCreation(TrackedObject{ObjectType: objectType, Name: name(i), ID: name(i)})
	}

	recent := tr.Recent(5)
	if len(recent) != 5 {
		t.Fatalf("Recent(5) 长度 = %d", len(recent))
	}
	if recent[4].Name != name(14) {
		t.Fatalf("最后一个 = %s, 期望最新对象", recent[4].Name)
	}

	controls := tr.ByType("control")
	if len(controls) != 8 {
		t.Fatalf("control 数量 = %d, 期望 8", len(controls))
	}
}

func name(i int) string {
	return string(rune('a' + i))
}

func TestClear(t *testing.T) {
	tr := New()
	tr.TrackCreation(TrackedObject{ObjectType: "scope", Name: "HQ", ID: "s-1"})
	tr.Clear()
	if tr.Count() != 0 {
		t.Fatalf("Count = %d, 期望 0", tr.Count())
	}
	if _, ok := tr.FindByName("hq"); ok {
		t.Fatal("清空后不应命中")
	}
}

func TestSummary(t *testing.T) {
	tr := New()
	if got := tr.Summary(); got != "No ISMS objects tracked in this session." {
		t.Fatalf("空摘要 = %q", got)
	}

	tr.TrackCreation(TrackedObject{ObjectType: "scope", Name: "HQ", ID: "s-1", Abbreviation: "HQ"})
	summary := tr.Summary()
	if summary == "" || summary == "No ISMS objects tracked in this session." {
		t.Fatalf("summary = %q", summary)
	}
}
