package capture

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(tmpDir, "http://localhost:8080/files/")
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Upload", func() {
		var (
			objectPath string
			data       []byte
			url        string
			err        error
		)

		BeforeEach(func() {
			objectPath = "tasks/task-1/1705312800000_original.jpg"
			data = []byte("jpeg bytes")
		})

		JustBeforeEach(func() {
			url, err = storage.Upload(context.Background(), objectPath, data, "image/jpeg")
		})

		When("uploading succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the public URL", func() {
				Expect(url).To(Equal("http://localhost:8080/files/tasks/task-1/1705312800000_original.jpg"))
			})

			It("should write the file below the base path", func() {
				content, err := os.ReadFile(filepath.Join(tmpDir, "tasks", "task-1", "1705312800000_original.jpg"))
				Expect(err).NotTo(HaveOccurred())
				Expect(content).To(Equal(data))
			})

			It("should serve the file back", func() {
				content, err := storage.Get(objectPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(content).To(Equal(data))
			})
		})

		When("the path escapes the base path", func() {
			BeforeEach(func() {
				objectPath = "../outside.jpg"
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(errInvalidPath))
			})

			It("should not write outside", func() {
				_, statErr := os.Stat(filepath.Join(filepath.Dir(tmpDir), "outside.jpg"))
				Expect(os.IsNotExist(statErr)).To(BeTrue())
			})
		})

		When("the context is already cancelled", func() {
			It("should return the context error", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_, err := storage.Upload(ctx, "tasks/x.jpg", data, "image/jpeg")
				Expect(err).To(MatchError(context.Canceled))
			})
		})
	})

	Describe("Get", func() {
		When("the file does not exist", func() {
			It("should return ErrNotFound", func() {
				_, err := storage.Get("tasks/missing.jpg")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})
})

// mockUploader is a mock implementation of s3manageriface.UploaderAPI
type mockUploader struct {
	input *s3manager.UploadInput
	body  []byte
	err   error
}

func (m *mockUploader) Upload(input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return m.UploadWithContext(context.Background(), input, opts...)
}

func (m *mockUploader) UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.input = input
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.body = body
	return &s3manager.UploadOutput{
		Location: "https://vouchers.s3.us-east-1.amazonaws.com/" + aws.StringValue(input.Key),
	}, nil
}

var _ = Describe("S3Storage", func() {
	var (
		uploader  *mockUploader
		publicURL string
		url       string
		err       error
	)

	BeforeEach(func() {
		uploader = &mockUploader{}
		publicURL = ""
	})

	JustBeforeEach(func() {
		storage := NewS3StorageWithUploader("vouchers", publicURL, uploader)
		url, err = storage.Upload(context.Background(), "tasks/task-1/1_processed.jpg", []byte("jpeg"), "image/jpeg")
	})

	When("no public URL is configured", func() {
		It("should return the S3 location", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(url).To(Equal("https://vouchers.s3.us-east-1.amazonaws.com/tasks/task-1/1_processed.jpg"))
		})

		It("should put the object in the bucket", func() {
			Expect(aws.StringValue(uploader.input.Bucket)).To(Equal("vouchers"))
			Expect(aws.StringValue(uploader.input.Key)).To(Equal("tasks/task-1/1_processed.jpg"))
			Expect(aws.StringValue(uploader.input.ContentType)).To(Equal("image/jpeg"))
			Expect(uploader.body).To(Equal([]byte("jpeg")))
		})
	})

	When("a public URL is configured", func() {
		BeforeEach(func() {
			publicURL = "https://cdn.example.com/"
		})

		It("should return the URL under it", func() {
			Expect(url).To(Equal("https://cdn.example.com/tasks/task-1/1_processed.jpg"))
		})
	})

	When("the upload fails", func() {
		BeforeEach(func() {
			uploader.err = errors.New("access denied")
		})

		It("should return the error", func() {
			Expect(err).To(MatchError(ContainSubstring("access denied")))
			Expect(url).To(BeEmpty())
		})
	})
})

var _ = Describe("NewS3Storage", func() {
	It("should build an uploader from an AWS session", func() {
		storage, err := NewS3Storage("vouchers", "us-east-1", "https://cdn.example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(storage.uploader).To(BeAssignableToTypeOf(&s3manager.Uploader{}))
		Expect(storage.publicURL).To(Equal("https://cdn.example.com"))
	})

	It("should require a bucket", func() {
		_, err := NewS3Storage("", "us-east-1", "")
		Expect(err).To(MatchError(ContainSubstring("bucket is required")))
	})
})
