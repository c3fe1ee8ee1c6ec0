package preprocess

import (
	"bytes"
	"image"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// voucherBuffer draws a white page with a few dark text-like bars
func voucherBuffer(width, height int) *PixelBuffer {
	buf := solidBuffer(width, height, white)
	for y := height / 4; y < height*3/4; y += height / 10 {
		fillRect(buf, width/8, y, width*7/8, y+height/40, black)
	}
	return buf
}

var _ = Describe("Process", func() {
	var (
		data   []byte
		mode   Mode
		result *Result
		err    error
	)

	BeforeEach(func() {
		data = encodePNG(voucherBuffer(400, 300))
	})

	JustBeforeEach(func() {
		result, err = Process(data, "image/png", mode)
	})

	When("the mode is Original", func() {
		BeforeEach(func() {
			mode = Original
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the decoded buffer as the processed variant", func() {
			Expect(result.Processed).To(BeIdenticalTo(result.Original))
		})

		It("should not solve a threshold", func() {
			Expect(result.Threshold).To(Equal(0))
			Expect(result.Histogram.Sum()).To(Equal(0))
		})
	})

	for _, m := range []Mode{Soft, Strong} {
		When("the mode is "+m.String(), func() {
			BeforeEach(func() {
				mode = m
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should keep the original untouched", func() {
				Expect(result.Original.Pix).To(Equal(voucherBuffer(400, 300).Pix))
			})

			It("should keep the dimensions", func() {
				Expect(result.Processed.Width).To(Equal(400))
				Expect(result.Processed.Height).To(Equal(300))
			})

			It("should land the threshold near the midpoint", func() {
				Expect(result.Threshold).To(BeNumerically("~", 127, 10))
			})

			It("should count every pixel", func() {
				Expect(result.Histogram.Sum()).To(Equal(400 * 300))
			})

			It("should produce a grayscale image", func() {
				pix := result.Processed.Pix
				for i := 0; i < len(pix); i += 4 {
					Expect(pix[i+1]).To(Equal(pix[i]))
					Expect(pix[i+2]).To(Equal(pix[i]))
				}
			})

			It("should be deterministic", func() {
				again, err := Process(data, "image/png", mode)
				Expect(err).NotTo(HaveOccurred())
				Expect(again.Threshold).To(Equal(result.Threshold))
				Expect(again.Processed.Pix).To(Equal(result.Processed.Pix))
			})
		})
	}

	When("the mode is Soft", func() {
		BeforeEach(func() {
			mode = Soft
		})

		It("should lift paper to the soft ceiling and keep ink off pure black", func() {
			pix := result.Processed.Pix
			Expect(pix[0]).To(Equal(byte(242)))
			i := ((300/4)*400 + 200) * 4
			Expect(pix[i]).To(Equal(byte(10)))
		})
	})

	When("the mode is Strong", func() {
		BeforeEach(func() {
			mode = Strong
		})

		It("should push paper to white and ink to black", func() {
			pix := result.Processed.Pix
			Expect(pix[0]).To(Equal(byte(255)))
			i := ((300/4)*400 + 200) * 4
			Expect(pix[i]).To(Equal(byte(0)))
		})
	})

	When("the input is not an image", func() {
		JustBeforeEach(func() {
			result, err = Process([]byte("hello"), "text/plain", Strong)
		})

		It("should fail with ErrUnsupportedFormat", func() {
			Expect(err).To(MatchError(ErrUnsupportedFormat))
			Expect(result).To(BeNil())
		})
	})
})

var _ = Describe("Reprocess", func() {
	It("should switch modes without decoding again", func() {
		original := voucherBuffer(200, 150)
		before := original.Clone()

		strong := Reprocess(original, Strong)
		soft := Reprocess(original, Soft)

		Expect(original.Pix).To(Equal(before.Pix))
		Expect(strong.Original).To(BeIdenticalTo(original))
		Expect(soft.Original).To(BeIdenticalTo(original))
		Expect(strong.Processed.Pix).NotTo(Equal(soft.Processed.Pix))
	})
})

var _ = Describe("ExtractionPayload", func() {
	It("should cap a large capture at 1024 pixels", func() {
		payload, err := ExtractionPayload(voucherBuffer(2000, 1500))
		Expect(err).NotTo(HaveOccurred())

		cfg, format, err := image.DecodeConfig(bytes.NewReader(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(format).To(Equal("jpeg"))
		Expect(cfg.Width).To(Equal(1024))
		Expect(cfg.Height).To(Equal(768))
	})

	It("should keep a small capture at its size", func() {
		payload, err := ExtractionPayload(voucherBuffer(640, 480))
		Expect(err).NotTo(HaveOccurred())

		cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Width).To(Equal(640))
		Expect(cfg.Height).To(Equal(480))
	})
})
