package preprocess

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("DetectContentRegion", func() {
	var (
		buf       *PixelBuffer
		threshold int
		box       BoundingBox
	)

	BeforeEach(func() {
		threshold = 128
	})

	JustBeforeEach(func() {
		box = DetectContentRegion(buf, threshold)
	})

	When("a dark block sits in the middle of the page", func() {
		BeforeEach(func() {
			buf = solidBuffer(2000, 1500, white)
			fillRect(buf, 950, 725, 1050, 775, black)
		})

		It("should bound the block plus a 3% margin", func() {
			// stride is 4 at this width, so edges land on the sampled grid
			Expect(box).To(Equal(BoundingBox{Top: 679, Bottom: 821, Left: 888, Right: 1112}))
		})

		It("should stay within one stride of the exact block", func() {
			Expect(box.Left).To(BeNumerically("~", 950-60, 4))
			Expect(box.Right).To(BeNumerically("~", 1049+60, 4))
			Expect(box.Top).To(BeNumerically("~", 725-45, 4))
			Expect(box.Bottom).To(BeNumerically("~", 774+45, 4))
		})

		It("should not modify the buffer", func() {
			Expect(buf.Pix[0]).To(Equal(byte(255)))
		})
	})

	When("the page is blank", func() {
		BeforeEach(func() {
			buf = solidBuffer(1000, 800, white)
		})

		It("should fall back to a 10% inset plus margin", func() {
			Expect(box).To(Equal(BoundingBox{Top: 56, Bottom: 743, Left: 70, Right: 929}))
		})
	})

	When("content touches the frame", func() {
		BeforeEach(func() {
			buf = solidBuffer(400, 300, white)
			fillRect(buf, 0, 0, 400, 20, black)
			fillRect(buf, 0, 280, 400, 300, black)
		})

		It("should clamp the box to the image", func() {
			Expect(box).To(Equal(BoundingBox{Top: 0, Bottom: 299, Left: 0, Right: 399}))
		})
	})

	When("only a low-contrast edge is present", func() {
		BeforeEach(func() {
			threshold = 50
			buf = solidBuffer(600, 400, white)
			// darker than paper but above the threshold, so only the gradient pass sees it
			fillRect(buf, 200, 100, 400, 300, colorOf(150))
		})

		It("should still find the block", func() {
			Expect(box.Left).To(BeNumerically("~", 200-18, 2))
			Expect(box.Right).To(BeNumerically("~", 399+18, 2))
			Expect(box.Top).To(BeNumerically("~", 100-12, 2))
			Expect(box.Bottom).To(BeNumerically("~", 299+12, 2))
		})
	})

	When("the buffer has no pixels", func() {
		BeforeEach(func() {
			buf = NewPixelBuffer(0, 0)
		})

		It("should return an empty box", func() {
			Expect(box).To(Equal(BoundingBox{}))
		})
	})
})
