package blur

import (
	"image"
	"image/color"
	"testing"
	"time"
)

func TestWorkerDeliversResult(t *testing.T) {
	w := NewWorker(nil)
	defer w.Stop()

	done := make(chan *image.RGBA, 1)
	img := uniformImage(8, 8, color.RGBA{R: 40, G: 80, B: 120, A: 255})

	id := w.Submit(img, 3, func(out *image.RGBA) {
		done <- out
	})
	if id == "" {
		t.Fatal("expected a job id")
	}

	select {
	case out := <-done:
		if got := out.RGBAAt(4, 4); got.R != 40 || got.A != 255 {
			t.Errorf("unexpected pixel after blur: %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blur result never delivered")
	}
}

func TestWorkerDropsResultWithoutSink(t *testing.T) {
	w := NewWorker(nil)
	w.Stop()

	delivered := false
	w.sinks["kept"] = func(*image.RGBA) { delivered = true }

	img := uniformImage(4, 4, color.RGBA{A: 255})
	w.process(job{id: "orphan", img: img, radius: 2})
	if delivered {
		t.Fatal("orphan job must not reach another job's sink")
	}

	w.Cancel("kept")
	w.process(job{id: "kept", img: img, radius: 2})
	if delivered {
		t.Fatal("canceled job's sink must not fire")
	}
}

func TestWorkerRecoversFromSinkPanic(t *testing.T) {
	w := NewWorker(nil)
	w.Stop()

	img := uniformImage(4, 4, color.RGBA{A: 255})
	w.sinks["boom"] = func(*image.RGBA) { panic("sink failure") }
	w.process(job{id: "boom", img: img, radius: 1})

	queued, registered := w.Pending()
	if queued != 0 || registered != 0 {
		t.Errorf("expected empty worker after panic, got queued=%d registered=%d", queued, registered)
	}
}
