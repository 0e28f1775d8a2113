package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/brunobozic/poll-automation-sub004/internal/analyzer"
	"github.com/brunobozic/poll-automation-sub004/internal/failure"
	"github.com/brunobozic/poll-automation-sub004/internal/store"
)

// End-to-end over a real SQLite store: capture the same selector failure
// repeatedly, watch it deduplicate, escalate into a pattern recommendation,
// and surface on the dashboard.
var _ = ginkgo.Describe("Failure lifecycle", func() {
	ginkgo.It("deduplicates, classifies, recommends, and reports", func() {
		dir := ginkgo.GinkgoT().TempDir()
		st, err := store.Open(filepath.Join(dir, "failures.db"))
		gomega.Expect(err).To(gomega.Succeed())
		ginkgo.DeferCleanup(st.Close)

		e := New(st, &stubAnalyzer{err: analyzer.ErrUnavailable})
		ctx := context.Background()

		capture := func(selector string, step int) *CycleSummary {
			sum, err := e.CaptureAndAnalyzeFailure(ctx, &failure.FailureContext{
				RegistrationID: 7,
				SiteID:         42,
				FailureType:    failure.FailureTechnical,
				SeverityLevel:  4,
				ErrorMessage:   "selector " + selector + " did not match",
				FailedSelector: selector,
				FailedAction:   "click",
				PageURL:        "https://site.example/register",
				StepNumber:     step,
			})
			gomega.Expect(err).To(gomega.Succeed())
			return sum
		}

		first := capture("#submit", 3)
		gomega.Expect(first.Insights.Deduplicated).To(gomega.BeFalse())
		gomega.Expect(first.Insights.FallbackUsed).To(gomega.BeTrue(), "analyzer is down")
		gomega.Expect(first.Insights.RootCauseCategory).To(gomega.Equal(failure.CauseSelectorOutdated))

		repeat := capture("#submit", 3)
		gomega.Expect(repeat.ScenarioID).To(gomega.Equal(first.ScenarioID))
		gomega.Expect(repeat.Insights.Deduplicated).To(gomega.BeTrue())
		gomega.Expect(repeat.Insights.OccurrenceCount).To(gomega.Equal(2))

		capture("#consent", 4)
		capture("#newsletter", 5)
		escalated := capture("#country", 6)
		gomega.Expect(escalated.Insights.SimilarFailures).To(gomega.BeNumerically(">=", 3))
		gomega.Expect(escalated.RecommendationIDs).To(gomega.HaveLen(2), "category fix plus pattern escalation")
		gomega.Expect(escalated.TestIDs).To(gomega.HaveLen(3), "one reproduction, two validations")

		d, err := e.GetFailureDashboard(ctx, 24*time.Hour)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(d.RecentFailures).NotTo(gomega.BeEmpty())
		gomega.Expect(d.PendingRecommendations).NotTo(gomega.BeEmpty())
		gomega.Expect(d.LearningProgress).To(gomega.HaveLen(1))
		gomega.Expect(d.LearningProgress[0].TotalFailures).To(gomega.Equal(5))

		stats, err := e.Stats()
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(stats.Scenarios).To(gomega.Equal(4))
		gomega.Expect(stats.Analyses).To(gomega.Equal(5))
	})
})
