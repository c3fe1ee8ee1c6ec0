package preprocess

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Downsample", func() {
	var (
		source *PixelBuffer
		result *PixelBuffer
	)

	JustBeforeEach(func() {
		result = Downsample(source, MaxExtractionSide)
	})

	When("the source is landscape and too large", func() {
		BeforeEach(func() {
			source = solidBuffer(2000, 1500, white)
		})

		It("should cap the long side", func() {
			Expect(result.Width).To(Equal(1024))
			Expect(result.Height).To(Equal(768))
		})

		It("should hold a valid pixel slice", func() {
			Expect(result.Pix).To(HaveLen(1024 * 768 * 4))
		})

		It("should not modify the source", func() {
			Expect(source.Width).To(Equal(2000))
			Expect(source.Height).To(Equal(1500))
		})
	})

	When("the source is portrait and too large", func() {
		BeforeEach(func() {
			source = solidBuffer(1000, 3000, white)
		})

		It("should cap the long side", func() {
			Expect(result.Height).To(Equal(1024))
		})

		It("should keep the aspect ratio within a pixel", func() {
			expectedWidth := float64(1000) * 1024 / 3000
			Expect(float64(result.Width)).To(BeNumerically("~", expectedWidth, 1))
		})
	})

	When("the source is extremely thin", func() {
		BeforeEach(func() {
			source = solidBuffer(5000, 1, white)
		})

		It("should keep at least one row", func() {
			Expect(result.Width).To(Equal(1024))
			Expect(result.Height).To(Equal(1))
		})
	})

	When("the source is already within bounds", func() {
		BeforeEach(func() {
			source = solidBuffer(800, 600, white)
		})

		It("should return the identical buffer", func() {
			Expect(result).To(BeIdenticalTo(source))
		})
	})

	When("the source is exactly at the bound", func() {
		BeforeEach(func() {
			source = solidBuffer(1024, 1024, white)
		})

		It("should return the identical buffer", func() {
			Expect(result).To(BeIdenticalTo(source))
		})
	})
})
