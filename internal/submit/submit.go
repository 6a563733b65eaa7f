package submit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/strandapp/strand-service/internal/media"
	"github.com/strandapp/strand-service/internal/post"
	"github.com/strandapp/strand-service/internal/types"
	"github.com/strandapp/strand-service/internal/upload"
)

// Service is the submission entrypoint: it owns the per-file
// classify → compress → route → upload sequence and hands the resulting
// asset ids to the assembler. This is the single operation the rest of the
// application calls into the pipeline.
type Service struct {
	classifier *media.Classifier
	compressor *media.Compressor
	router     *upload.Router
	proxied    upload.Uploader
	direct     upload.Uploader
	guard      *post.Guard
	assembler  *post.Assembler

	maxConcurrent int

	// OnProgress, when set, receives per-file upload progress keyed by the
	// file's submission index. Best-effort; must not block.
	OnProgress func(fileIndex int, fraction float64)
}

func NewService(
	classifier *media.Classifier,
	compressor *media.Compressor,
	router *upload.Router,
	proxied, direct upload.Uploader,
	guard *post.Guard,
	assembler *post.Assembler,
	maxConcurrent int,
) *Service {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Service{
		classifier:    classifier,
		compressor:    compressor,
		router:        router,
		proxied:       proxied,
		direct:        direct,
		guard:         guard,
		assembler:     assembler,
		maxConcurrent: maxConcurrent,
	}
}

// SubmitPost validates, uploads and assembles one post. Validation (empty
// post, unsupported types, size ceilings, membership) happens before any
// network or storage call. Files upload with bounded concurrency; display
// order is recorded from submission order, never completion order. The first
// unrecoverable file failure aborts the files that have not started yet and
// surfaces an error identifying the failed file; sibling objects already in
// storage stay there unreferenced.
func (s *Service) SubmitPost(ctx context.Context, authorID, textContent string, files []media.SubmittedFile, groupIDs []string) (*types.Post, error) {
	if strings.TrimSpace(textContent) == "" && len(files) == 0 {
		return nil, types.ErrEmptyPost
	}

	classifications := make([]media.Classification, len(files))
	for i, f := range files {
		cl, err := s.classifier.Classify(f)
		if err != nil {
			return nil, &types.FileError{Index: i, Name: f.Name, Err: err}
		}
		classifications[i] = cl
	}

	if err := s.guard.Verify(ctx, authorID, groupIDs); err != nil {
		return nil, err
	}

	s.compressOversized(files, classifications)

	assets := make([]*media.Asset, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)

	for i := range files {
		g.Go(func() error {
			// Fail-fast: a sibling failure aborts files that have not
			// started yet.
			if gctx.Err() != nil {
				return gctx.Err()
			}

			f, cl := files[i], classifications[i]
			uploader := s.proxied
			path := s.router.Route(cl, f.Size(), authorID)
			if path == upload.PathDirect {
				uploader = s.direct
			}

			// Once a file's upload is in flight it runs to completion even
			// if the caller or a sibling cancels: a half-written object with
			// no metadata is unrecoverable garbage.
			uctx := context.WithoutCancel(gctx)
			asset, err := uploader.Upload(uctx, authorID, f, cl, s.progressFor(i))
			if err != nil {
				return &types.FileError{Index: i, Name: f.Name, Err: err}
			}

			slog.Info("file uploaded",
				slog.Int("index", i),
				slog.String("file_name", f.Name),
				slog.String("path", path.String()),
				slog.String("asset_id", asset.ID))

			assets[i] = asset
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var fileErr *types.FileError
		if errors.As(err, &fileErr) {
			return nil, fileErr
		}
		return nil, err
	}

	assetIDs := make([]string, len(assets))
	for i, asset := range assets {
		assetIDs[i] = asset.ID
	}

	return s.assembler.Assemble(ctx, authorID, textContent, assetIDs, groupIDs)
}

// compressOversized shrinks images over the soft limit in place. Compression
// failure is recoverable: the original file uploads uncompressed.
func (s *Service) compressOversized(files []media.SubmittedFile, classifications []media.Classification) {
	for i := range files {
		if !s.classifier.NeedsCompression(classifications[i], files[i].Size()) {
			continue
		}

		out, err := s.compressor.Compress(files[i], classifications[i])
		if err != nil {
			var ce *types.CompressionError
			if errors.As(err, &ce) {
				slog.Warn("image compression failed, uploading original",
					slog.String("file_name", files[i].Name),
					slog.String("category", string(ce.Category)),
					slog.String("error", ce.Error()))
			}
			continue
		}

		if out.MimeType != files[i].MimeType {
			classifications[i].MimeType = out.MimeType
		}
		files[i] = out
	}
}

func (s *Service) progressFor(index int) upload.ProgressFunc {
	if s.OnProgress == nil {
		return nil
	}
	return func(fraction float64) {
		s.OnProgress(index, fraction)
	}
}
