package capture

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-capture/internal/preprocess"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newExpense := func(id string, created time.Time) *Expense {
		return &Expense{
			ID:           id,
			TaskID:       "task-1",
			Amount:       "45.90",
			Description:  "Copec - combustible",
			Date:         "2024-01-15",
			Category:     "combustible",
			Mode:         preprocess.Strong,
			OriginalURL:  "https://files.test/tasks/task-1/1_original.jpg",
			ProcessedURL: "https://files.test/tasks/task-1/1_processed.jpg",
			CreatedAt:    created,
		}
	}

	Describe("SaveExpense", func() {
		var (
			expense *Expense
			err     error
		)

		BeforeEach(func() {
			expense = newExpense("exp-1", time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = db.SaveExpense(expense)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should round trip every field", func() {
				saved, err := db.GetExpense("exp-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(saved).To(Equal(expense))
			})
		})

		When("saving the same ID twice", func() {
			It("should overwrite the record", func() {
				expense.Amount = "50.00"
				Expect(db.SaveExpense(expense)).To(Succeed())
				saved, err := db.GetExpense("exp-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(saved.Amount).To(Equal("50.00"))
			})
		})
	})

	Describe("GetExpense", func() {
		When("the expense does not exist", func() {
			It("should return ErrNotFound", func() {
				_, err := db.GetExpense("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListExpenses", func() {
		When("the database is empty", func() {
			It("should return an empty list", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).NotTo(BeNil())
				Expect(expenses).To(BeEmpty())
			})
		})

		When("expenses exist", func() {
			BeforeEach(func() {
				base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
				Expect(db.SaveExpense(newExpense("a", base))).To(Succeed())
				Expect(db.SaveExpense(newExpense("b", base.Add(2*time.Hour)))).To(Succeed())
				Expect(db.SaveExpense(newExpense("c", base.Add(time.Hour)))).To(Succeed())
			})

			It("should return them newest first", func() {
				expenses, err := db.ListExpenses()
				Expect(err).NotTo(HaveOccurred())
				Expect(expenses).To(HaveLen(3))
				Expect(expenses[0].ID).To(Equal("b"))
				Expect(expenses[1].ID).To(Equal("c"))
				Expect(expenses[2].ID).To(Equal("a"))
			})
		})
	})

	Describe("mode preference", func() {
		When("nothing is stored", func() {
			It("should report no preference", func() {
				_, ok, err := db.GetMode()
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})
		})

		When("a mode is stored", func() {
			BeforeEach(func() {
				Expect(db.SaveMode(preprocess.Strong)).To(Succeed())
			})

			It("should read it back", func() {
				mode, ok, err := db.GetMode()
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(mode).To(Equal(preprocess.Strong))
			})

			It("should survive reopening the database", func() {
				Expect(db.Close()).To(Succeed())
				var err error
				db, err = NewBoltDB(dbPath)
				Expect(err).NotTo(HaveOccurred())

				mode, ok, err := db.GetMode()
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())
				Expect(mode).To(Equal(preprocess.Strong))
			})
		})

		When("the mode is invalid", func() {
			It("should refuse to store it", func() {
				Expect(db.SaveMode(preprocess.Mode(7))).NotTo(Succeed())
			})
		})
	})
})
