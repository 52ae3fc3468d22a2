package google

import (
	"context"
	"errors"
	"math"
	"testing"

	"cloud.google.com/go/language/apiv1/languagepb"
	"github.com/googleapis/gax-go/v2"
)

type fakeAPI struct {
	req  *languagepb.AnalyzeSentimentRequest
	resp *languagepb.AnalyzeSentimentResponse
	err  error
}

func (f *fakeAPI) AnalyzeSentiment(_ context.Context, req *languagepb.AnalyzeSentimentRequest, _ ...gax.CallOption) (*languagepb.AnalyzeSentimentResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeAPI) Close() error { return nil }

func TestProvider_Analyze(t *testing.T) {
	t.Parallel()
	fa := &fakeAPI{resp: &languagepb.AnalyzeSentimentResponse{
		DocumentSentiment: &languagepb.Sentiment{Score: 0.5, Magnitude: 1.5},
	}}
	p := newProvider(fa, WithLanguage("en"))

	res, err := p.Analyze(context.Background(), "I loved today")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if math.Abs(res.ScoreOrZero()-0.5) > 1e-6 || math.Abs(res.MagnitudeOrZero()-1.5) > 1e-6 {
		t.Errorf("result = %v / %v, want 0.5 / 1.5", res.ScoreOrZero(), res.MagnitudeOrZero())
	}

	doc := fa.req.GetDocument()
	if doc.GetContent() != "I loved today" {
		t.Errorf("content = %q", doc.GetContent())
	}
	if doc.GetType() != languagepb.Document_PLAIN_TEXT {
		t.Errorf("type = %v, want PLAIN_TEXT", doc.GetType())
	}
	if doc.GetLanguage() != "en" {
		t.Errorf("language = %q", doc.GetLanguage())
	}
}

func TestProvider_MissingDocumentSentiment(t *testing.T) {
	t.Parallel()
	p := newProvider(&fakeAPI{resp: &languagepb.AnalyzeSentimentResponse{}})
	res, err := p.Analyze(context.Background(), "hm")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Score != nil || res.Magnitude != nil {
		t.Errorf("result = %+v, want both absent", res)
	}
}

func TestProvider_Error(t *testing.T) {
	t.Parallel()
	boom := errors.New("permission denied")
	p := newProvider(&fakeAPI{err: boom})
	if _, err := p.Analyze(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}
