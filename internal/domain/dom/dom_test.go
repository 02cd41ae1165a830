package dom

import "testing"

func TestRectEdges(t *testing.T) {
	tests := []struct {
		name                     string
		rect                     Rect
		top, right, bottom, left float64
	}{
		{"positive", Rect{X: 10, Y: 20, Width: 100, Height: 50}, 20, 110, 70, 10},
		{"negative width", Rect{X: 10, Y: 20, Width: -100, Height: 50}, 20, 10, 70, -90},
		{"negative height", Rect{X: 10, Y: 20, Width: 100, Height: -50}, -30, 110, 20, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rect.Top(); got != tt.top {
				t.Errorf("Top() = %v, want %v", got, tt.top)
			}
			if got := tt.rect.Right(); got != tt.right {
				t.Errorf("Right() = %v, want %v", got, tt.right)
			}
			if got := tt.rect.Bottom(); got != tt.bottom {
				t.Errorf("Bottom() = %v, want %v", got, tt.bottom)
			}
			if got := tt.rect.Left(); got != tt.left {
				t.Errorf("Left() = %v, want %v", got, tt.left)
			}
		})
	}
}

func TestNodeAttributes(t *testing.T) {
	n := NewNode("amp-img")
	n.SetAttribute("src", "hero.jpg")
	n.SetAttribute("alt", "a hero")

	if v, ok := n.Attribute("src"); !ok || v != "hero.jpg" {
		t.Errorf("Attribute(src) = %q, %v", v, ok)
	}
	if !n.HasAttribute("alt") {
		t.Error("expected alt attribute")
	}

	attrs := n.Attributes()
	attrs["src"] = "mutated.jpg"
	if v, _ := n.Attribute("src"); v != "hero.jpg" {
		t.Error("Attributes() must return a copy")
	}

	n.RemoveAttribute("alt")
	if n.HasAttribute("alt") {
		t.Error("alt should be removed")
	}
}

func TestNodeClasses(t *testing.T) {
	n := NewNode("div")
	n.AddClass("a", "b", "a", "")
	if got := n.Classes(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Classes() = %v", got)
	}
	n.RemoveClass("a")
	if n.HasClass("a") || !n.HasClass("b") {
		t.Errorf("after remove: %v", n.Classes())
	}
}

func TestNodeTreeOps(t *testing.T) {
	root := NewNode("body")
	section := NewNode("section")
	img := NewNode("img")
	img.SetAttribute("fallback", "")

	root.AppendChild(section)
	section.AppendChild(img)

	if img.Parent() != section || section.Parent() != root {
		t.Fatal("parent links wrong")
	}
	if got := root.FirstChildByTag("section"); got != section {
		t.Error("FirstChildByTag missed section")
	}
	if got := section.FirstChildWithAttribute("fallback"); got != img {
		t.Error("FirstChildWithAttribute missed img")
	}

	// Reparenting removes from the old parent.
	root.AppendChild(img)
	if len(section.Children()) != 0 {
		t.Error("img should have left section")
	}
	if img.Parent() != root {
		t.Error("img should be under root")
	}
}

func TestClosestWithAttribute(t *testing.T) {
	outer := NewNode("div")
	outer.SetAttribute("data-story", "s1")
	inner := NewNode("amp-img")
	outer.AppendChild(inner)

	if got := inner.ClosestWithAttribute("data-story"); got != outer {
		t.Error("should find the ancestor")
	}
	if got := inner.ClosestWithAttribute("missing"); got != nil {
		t.Error("missing attribute should yield nil")
	}

	inner.SetAttribute("data-story", "self")
	if got := inner.ClosestWithAttribute("data-story"); got != inner {
		t.Error("self match wins over ancestor")
	}
}
