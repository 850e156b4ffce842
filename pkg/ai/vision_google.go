package ai

import (
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// maxVisionFilePages is the synchronous BatchAnnotateFiles page limit.
const maxVisionFilePages = 5

// GoogleVisionOptions selects credentials. CredentialsJSON wins over
// CredentialsFile; with neither, application default credentials are used.
type GoogleVisionOptions struct {
	CredentialsJSON string
	CredentialsFile string
	LanguageHints   []string
}

// GoogleVisionExtractor uses Cloud Vision DOCUMENT_TEXT_DETECTION for
// captured regions and scanned PDF pages.
type GoogleVisionExtractor struct {
	client        *vision.ImageAnnotatorClient
	languageHints []string
}

// NewGoogleVisionExtractor creates the Vision client.
func NewGoogleVisionExtractor(ctx context.Context, opts GoogleVisionOptions) (*GoogleVisionExtractor, error) {
	var clientOptions []option.ClientOption
	if credJSON := strings.TrimSpace(opts.CredentialsJSON); credJSON != "" {
		clientOptions = append(clientOptions, option.WithCredentialsJSON([]byte(credJSON)))
	} else if credFile := strings.TrimSpace(opts.CredentialsFile); credFile != "" {
		clientOptions = append(clientOptions, option.WithCredentialsFile(credFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("init vision client: %w", err)
	}
	return &GoogleVisionExtractor{client: client, languageHints: opts.LanguageHints}, nil
}

// Close releases the gRPC connection.
func (g *GoogleVisionExtractor) Close() error {
	return g.client.Close()
}

func (g *GoogleVisionExtractor) features() []*visionpb.Feature {
	return []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}}
}

func (g *GoogleVisionExtractor) imageContext() *visionpb.ImageContext {
	if len(g.languageHints) == 0 {
		return nil
	}
	return &visionpb.ImageContext{LanguageHints: g.languageHints}
}

// ExtractText implements TextExtractor.
func (g *GoogleVisionExtractor) ExtractText(ctx context.Context, png []byte) (string, error) {
	resp, err := g.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:        &visionpb.Image{Content: png},
			Features:     g.features(),
			ImageContext: g.imageContext(),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", ErrEmptyResponse
	}
	return annotationText(resp.Responses[0])
}

// OCRPages implements PDFPageOCR, batching pages to the synchronous limit.
func (g *GoogleVisionExtractor) OCRPages(ctx context.Context, pdf []byte, pages []int) (map[int]string, error) {
	out := make(map[int]string, len(pages))
	for start := 0; start < len(pages); start += maxVisionFilePages {
		end := min(start+maxVisionFilePages, len(pages))
		batch := make([]int32, 0, end-start)
		for _, p := range pages[start:end] {
			batch = append(batch, int32(p))
		}
		resp, err := g.client.BatchAnnotateFiles(ctx, &visionpb.BatchAnnotateFilesRequest{
			Requests: []*visionpb.AnnotateFileRequest{{
				InputConfig:  &visionpb.InputConfig{Content: pdf, MimeType: "application/pdf"},
				Features:     g.features(),
				ImageContext: g.imageContext(),
				Pages:        batch,
			}},
		})
		if err != nil {
			return out, fmt.Errorf("vision annotate pdf: %w", err)
		}
		if len(resp.Responses) == 0 {
			continue
		}
		file := resp.Responses[0]
		if file.Error != nil && file.Error.Message != "" {
			return out, fmt.Errorf("vision annotate pdf: %s", file.Error.Message)
		}
		for i, page := range file.Responses {
			number := int(batch[min(i, len(batch)-1)])
			if page.Context != nil && page.Context.PageNumber > 0 {
				number = int(page.Context.PageNumber)
			}
			text, err := annotationText(page)
			if err != nil {
				continue
			}
			out[number] = text
		}
	}
	return out, nil
}

func annotationText(resp *visionpb.AnnotateImageResponse) (string, error) {
	if resp.Error != nil && resp.Error.Message != "" {
		return "", fmt.Errorf("vision error: %s", resp.Error.Message)
	}
	if resp.FullTextAnnotation == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.FullTextAnnotation.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
