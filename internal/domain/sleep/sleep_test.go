package sleep_test

import (
	"testing"
	"time"

	"github.com/okian/upready/internal/domain/model"
	"github.com/okian/upready/internal/domain/sleep"
	. "github.com/smartystreets/goconvey/convey"
)

var night = time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)

func at(h float64) time.Time {
	return night.Add(time.Duration(h * float64(time.Hour)))
}

func iv(stage model.SleepStage, from, to float64) model.SleepInterval {
	return model.SleepInterval{Stage: stage, Start: at(from), End: at(to)}
}

func TestReconcileIntervals(t *testing.T) {
	Convey("Given the deep/rem/core baseline night", t, func() {
		intervals := []model.SleepInterval{
			iv(model.StageCore, 2, 4),
			iv(model.StageDeep, 0, 1),
			iv(model.StageREM, 1, 2),
		}

		Convey("When reconciling under either total policy", func() {
			all := sleep.ReconcileIntervals(intervals)
			asleep := sleep.ReconcileIntervals(intervals, sleep.WithTotalPolicy(sleep.TotalAsleepOnly))

			Convey("Then the stage totals match and total is four hours", func() {
				So(all.Deep, ShouldEqual, time.Hour)
				So(all.REM, ShouldEqual, time.Hour)
				So(all.Core, ShouldEqual, 2*time.Hour)
				So(all.Total, ShouldEqual, 4*time.Hour)
				So(asleep.Total, ShouldEqual, 4*time.Hour)
			})
		})
	})

	Convey("Given non-overlapping intervals", t, func() {
		intervals := []model.SleepInterval{
			iv(model.StageCore, 0, 1.5),
			iv(model.StageAwake, 1.5, 1.75),
			iv(model.StageCore, 1.75, 3),
			iv(model.StageUnspecified, 3, 3.5),
		}

		Convey("Then totals equal the naive per-stage sum", func() {
			out := sleep.ReconcileIntervals(intervals)
			So(out.Core, ShouldEqual, (90+75)*time.Minute)
			So(out.Awake, ShouldEqual, 15*time.Minute)
			So(out.Unspecified, ShouldEqual, 30*time.Minute)
			So(out.Total, ShouldEqual, out.StageSum())
		})

		Convey("Then the asleep-only policy leaves awake and unspecified out of the total", func() {
			out := sleep.ReconcileIntervals(intervals, sleep.WithTotalPolicy(sleep.TotalAsleepOnly))
			So(out.Total, ShouldEqual, out.Core)
		})
	})

	Convey("Given an interval set containing an exact duplicate", t, func() {
		unique := []model.SleepInterval{
			iv(model.StageDeep, 0, 1),
			iv(model.StageDeep, 2, 3),
		}
		withDup := append([]model.SleepInterval{iv(model.StageDeep, 2, 3)}, unique...)

		Convey("Then removing the duplicate does not change the total", func() {
			So(sleep.ReconcileIntervals(withDup), ShouldResemble, sleep.ReconcileIntervals(unique))
			So(sleep.ReconcileIntervals(withDup).Deep, ShouldEqual, 2*time.Hour)
		})
	})

	Convey("Given two intervals sharing a start but not an end", t, func() {
		short, long := iv(model.StageDeep, 0, 1), iv(model.StageDeep, 0, 2)

		Convey("Then the longer one counts whatever the input order", func() {
			a := sleep.ReconcileIntervals([]model.SleepInterval{short, long})
			b := sleep.ReconcileIntervals([]model.SleepInterval{long, short})
			So(a.Deep, ShouldEqual, 2*time.Hour)
			So(b, ShouldResemble, a)
		})
	})

	Convey("Given an interval overlapping its predecessor", t, func() {
		intervals := []model.SleepInterval{
			iv(model.StageREM, 1, 2),
			iv(model.StageREM, 1.5, 2.5),
		}

		Convey("Then the overlap is counted once", func() {
			So(sleep.ReconcileIntervals(intervals).REM, ShouldEqual, 90*time.Minute)
		})
	})

	Convey("Given an interval fully contained in its predecessor", t, func() {
		intervals := []model.SleepInterval{
			iv(model.StageCore, 0, 3),
			iv(model.StageCore, 1, 2),
		}

		Convey("Then it contributes nothing and totals stay non-negative", func() {
			So(sleep.ReconcileIntervals(intervals).Core, ShouldEqual, 3*time.Hour)
		})
	})

	Convey("Given no intervals", t, func() {
		Convey("Then all totals are zero", func() {
			So(sleep.ReconcileIntervals(nil), ShouldResemble, model.StageTotals{})
		})
	})

	Convey("Given the same input reconciled twice", t, func() {
		intervals := []model.SleepInterval{
			iv(model.StageCore, 2, 4),
			iv(model.StageCore, 3, 5),
			iv(model.StageDeep, 0, 1),
			iv(model.StageDeep, 0, 1),
		}
		first := sleep.ReconcileIntervals(intervals)
		second := sleep.ReconcileIntervals(intervals)

		Convey("Then the results are identical and the input order is preserved", func() {
			So(first, ShouldResemble, second)
			So(intervals[0].Start, ShouldEqual, at(2))
		})
	})

	Convey("Given malformed intervals", t, func() {
		intervals := []model.SleepInterval{
			{Stage: model.StageDeep, Start: at(2), End: at(1)},
			{Stage: "nap", Start: at(0), End: at(1)},
		}

		Convey("Then they are ignored", func() {
			So(sleep.ReconcileIntervals(intervals), ShouldResemble, model.StageTotals{})
		})
	})
}

func TestParseTotalPolicy(t *testing.T) {
	Convey("Given config values", t, func() {
		So(sleep.ParseTotalPolicy("asleep"), ShouldEqual, sleep.TotalAsleepOnly)
		So(sleep.ParseTotalPolicy("all"), ShouldEqual, sleep.TotalAllStages)
		So(sleep.ParseTotalPolicy(""), ShouldEqual, sleep.TotalAllStages)
	})
}

func TestScore(t *testing.T) {
	Convey("Given an ideal night", t, func() {
		h := sleep.Hours{Total: 8, Deep: 1.6, REM: 2, Core: 2.4, Unspecified: 1.2, Awake: 0.8}

		Convey("Then the score is perfect", func() {
			So(sleep.Score(h), ShouldAlmostEqual, 1.0, 1e-9)
		})
	})

	Convey("Given a night with less awake time than ideal", t, func() {
		ideal := sleep.Hours{Total: 8, Deep: 1.6, REM: 2, Core: 2.4, Unspecified: 1.2, Awake: 0.8}
		lessAwake := sleep.Hours{Total: 8, Deep: 1.6, REM: 2, Core: 3.2, Unspecified: 1.2, Awake: 0}

		Convey("Then awake time is not what costs points", func() {
			So(sleep.Score(lessAwake), ShouldBeLessThan, sleep.Score(ideal))
			So(sleep.Score(lessAwake), ShouldBeGreaterThan, 0.9)
		})
	})

	Convey("Given a night with extra awake time", t, func() {
		h := sleep.Hours{Total: 8, Deep: 1.6, REM: 2, Core: 1.6, Unspecified: 1.2, Awake: 1.6}

		Convey("Then the score is penalized", func() {
			So(sleep.Score(h), ShouldBeLessThan, 0.95)
		})
	})

	Convey("Given a short night", t, func() {
		h := sleep.Hours{Total: 4, Deep: 0.8, REM: 1, Core: 1.2, Unspecified: 0.6, Awake: 0.4}

		Convey("Then only the duration sub-score drops", func() {
			// 4h off ideal gives a zero duration score; the mix is perfect.
			So(sleep.Score(h), ShouldAlmostEqual, 0.70, 1e-9)
		})
	})

	Convey("Given stage sums that disagree with the total by more than 0.1h", t, func() {
		h := sleep.Hours{Total: 8, Deep: 1.6, REM: 2, Core: 2.4, Unspecified: 1.2, Awake: 0.6}

		Convey("Then the score is exactly zero", func() {
			So(h.Consistent(), ShouldBeFalse)
			So(sleep.Score(h), ShouldEqual, 0)
		})
	})

	Convey("Given no recorded sleep", t, func() {
		So(sleep.Score(sleep.Hours{}), ShouldEqual, 0)
	})

	Convey("Given reconciled totals", t, func() {
		totals := sleep.ReconcileIntervals([]model.SleepInterval{
			iv(model.StageDeep, 0, 1.6),
			iv(model.StageREM, 1.6, 3.6),
			iv(model.StageCore, 3.6, 6),
			iv(model.StageUnspecified, 6, 7.2),
			iv(model.StageAwake, 7.2, 8),
		})

		Convey("Then ScoreTotals matches Score on hours", func() {
			So(sleep.ScoreTotals(totals), ShouldAlmostEqual, 1.0, 1e-6)
		})
	})
}
