package preprocess

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BuildHistogram", func() {
	var (
		buf  *PixelBuffer
		hist Histogram
	)

	JustBeforeEach(func() {
		hist = BuildHistogram(buf)
	})

	When("the buffer is small", func() {
		BeforeEach(func() {
			buf = noiseBuffer(37, 53)
		})

		It("should count every pixel exactly once", func() {
			Expect(hist.Sum()).To(Equal(37 * 53))
		})
	})

	When("the buffer spans several row partitions", func() {
		BeforeEach(func() {
			buf = noiseBuffer(301, 1201)
		})

		It("should count every pixel exactly once", func() {
			Expect(hist.Sum()).To(Equal(301 * 1201))
		})

		It("should bin by the red channel", func() {
			var expected Histogram
			for i := 0; i < len(buf.Pix); i += 4 {
				expected[buf.Pix[i]]++
			}
			Expect(hist).To(Equal(expected))
		})
	})

	When("the buffer is a single color", func() {
		BeforeEach(func() {
			buf = solidBuffer(10, 20, black)
		})

		It("should put everything in one bin", func() {
			Expect(hist[0]).To(Equal(200))
			Expect(hist.Sum()).To(Equal(200))
		})
	})
})

var _ = Describe("OtsuThreshold", func() {
	var (
		hist      Histogram
		threshold int
	)

	BeforeEach(func() {
		hist = Histogram{}
	})

	JustBeforeEach(func() {
		threshold = OtsuThreshold(hist)
	})

	When("the histogram has two well separated peaks", func() {
		BeforeEach(func() {
			hist[50] = 1000
			hist[200] = 1000
		})

		It("should land strictly between the peaks", func() {
			Expect(threshold).To(BeNumerically(">", 50))
			Expect(threshold).To(BeNumerically("<", 200))
		})

		It("should be deterministic", func() {
			for i := 0; i < 5; i++ {
				Expect(OtsuThreshold(hist)).To(Equal(threshold))
			}
		})
	})

	When("the histogram has two spread populations", func() {
		BeforeEach(func() {
			for v := 20; v <= 40; v++ {
				hist[v] = 50 + v
			}
			for v := 200; v <= 230; v++ {
				hist[v] = 400 - v
			}
		})

		It("should separate ink from paper", func() {
			Expect(threshold).To(BeNumerically(">=", 40))
			Expect(threshold).To(BeNumerically("<", 200))
		})
	})

	When("a middle population makes one split clearly better", func() {
		BeforeEach(func() {
			hist[0] = 100
			hist[100] = 100
			hist[255] = 100
		})

		It("should pick the split isolating the brightest class", func() {
			// [0,100] vs {255} beats {0} vs [100,255]; the run of equal
			// splits 100..254 is centered
			Expect(threshold).To(Equal(177))
		})
	})

	When("adjacent populated bins tie for the maximum", func() {
		BeforeEach(func() {
			hist[10] = 100
			hist[11] = 100
			hist[12] = 100
		})

		It("should keep the first maximum", func() {
			// splits at 10 and 11 have equal variance
			Expect(threshold).To(Equal(10))
		})
	})

	When("the populations are separated by a gap", func() {
		BeforeEach(func() {
			hist[0] = 100
			hist[255] = 100
		})

		It("should center the threshold in the gap", func() {
			Expect(threshold).To(Equal(127))
		})
	})

	When("the image is all black", func() {
		BeforeEach(func() {
			hist[0] = 5000
		})

		It("should return 0", func() {
			Expect(threshold).To(Equal(0))
		})
	})

	When("the image is all white", func() {
		BeforeEach(func() {
			hist[255] = 5000
		})

		It("should return 0", func() {
			Expect(threshold).To(Equal(0))
		})
	})

	When("the histogram is empty", func() {
		It("should return 0", func() {
			Expect(threshold).To(Equal(0))
		})
	})
})
