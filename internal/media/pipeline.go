// internal/media/pipeline.go

// Package media moves binary content between the provider CDN, object
// storage and the Cloud API media endpoint, and enforces the per-category
// payload rules the provider rejects violations of.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"wahub/internal/model"
	"wahub/internal/whatsapp"
)

// Asset describes one piece of binary content moving through the
// pipeline. It is never persisted; only the resulting message references
// StoragePath.
type Asset struct {
	Category    Category
	MimeType    string
	SizeBytes   int64
	StoragePath string
	PublicURL   string
}

type Pipeline struct {
	bucket *Bucket
	graph  *whatsapp.Client
	now    func() time.Time
}

func NewPipeline(bucket *Bucket, graph *whatsapp.Client) *Pipeline {
	return &Pipeline{bucket: bucket, graph: graph, now: time.Now}
}

const maxFilenameLen = 100

// sanitizeFilename strips everything outside [A-Za-z0-9_.-] and truncates
// to maxFilenameLen, keeping the extension.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		s = "file"
	}
	if len(s) <= maxFilenameLen {
		return s
	}
	ext := filepath.Ext(s)
	if len(ext) >= maxFilenameLen {
		return s[:maxFilenameLen]
	}
	return s[:maxFilenameLen-len(ext)] + ext
}

// StoragePath computes the content-addressed path for a payload:
// media/{date}/{shortHash}_{sanitizedFilename}. Identical content and
// filename always map to the same path, which makes uploads idempotent.
func (p *Pipeline) StoragePath(content []byte, filename string) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("media/%s/%s_%s",
		p.now().Format("2006-01-02"),
		hex.EncodeToString(sum[:])[:10],
		sanitizeFilename(filename))
}

// Upload validates the payload and stores it in the bucket.
func (p *Pipeline) Upload(content []byte, filename, mimeType string) (Asset, error) {
	cat, err := Validate(content, filename, mimeType)
	if err != nil {
		return Asset{}, err
	}

	mt := normalizeMime(content, filename, mimeType)
	path := p.StoragePath(content, filename)
	if err := p.bucket.Put(path, content, mt); err != nil {
		return Asset{}, err
	}

	return Asset{
		Category:    cat,
		MimeType:    mt,
		SizeBytes:   int64(len(content)),
		StoragePath: path,
		PublicURL:   p.bucket.PublicURL(path),
	}, nil
}

// Download pulls provider media: resolve the signed URL with the tenant's
// token, then fetch the bytes. A filename is synthesized from the content
// type when the provider supplies none.
func (p *Pipeline) Download(providerMediaID string, creds model.Credentials) (content []byte, filename, mimeType string, err error) {
	signedURL, mt, err := p.graph.ResolveMediaURL(creds, providerMediaID)
	if err != nil {
		return nil, "", "", err
	}

	content, fetchedType, err := p.graph.FetchMedia(creds, signedURL)
	if err != nil {
		return nil, "", "", err
	}
	if mt == "" {
		mt = fetchedType
	}

	filename = providerMediaID
	if exts, extErr := mime.ExtensionsByType(mt); extErr == nil && len(exts) > 0 {
		filename += exts[0]
	}
	return content, filename, mt, nil
}

// IngestInbound archives provider-hosted media for an inbound message:
// download via the tenant's signed URL, upload to the bucket, and point
// the message's media link at the stored copy. Link-only media (already
// on a public CDN) is left alone.
func (p *Pipeline) IngestInbound(msg *model.InboundMessage, creds model.Credentials) error {
	var body *model.MediaBody
	switch msg.Type {
	case model.TypeImage:
		body = msg.Image
	case model.TypeAudio:
		body = msg.Audio
	case model.TypeVideo:
		body = msg.Video
	case model.TypeDocument:
		body = msg.Document
	case model.TypeSticker:
		body = msg.Sticker
	default:
		return nil
	}
	if body == nil || body.ID == "" {
		return nil
	}

	content, filename, mimeType, err := p.Download(body.ID, creds)
	if err != nil {
		return err
	}
	if body.Filename != "" {
		filename = body.Filename
	}
	asset, err := p.Upload(content, filename, mimeType)
	if err != nil {
		return err
	}

	body.Link = asset.PublicURL
	if body.MimeType == "" {
		body.MimeType = asset.MimeType
	}
	return nil
}

// SendMedia delivers stored content to a phone. Image, video, audio and
// sticker payloads are first uploaded to the provider media endpoint and
// referenced by id; documents (and any other category) are referenced by
// public URL. Captions are only valid for image/video/document, filenames
// only for document; audio and voice carry neither.
func (p *Pipeline) SendMedia(creds model.Credentials, toDial string, content []byte, asset Asset, caption, filename string) (string, error) {
	body := map[string]any{}
	switch asset.Category {
	case CategoryImage, CategoryVideo:
		if caption != "" {
			body["caption"] = caption
		}
	case CategoryDocument:
		if caption != "" {
			body["caption"] = caption
		}
		if filename != "" {
			body["filename"] = sanitizeFilename(filename)
		}
	}

	field := string(asset.Category)
	switch asset.Category {
	case CategoryImage, CategoryVideo, CategoryAudio, CategorySticker:
		mediaID, err := p.graph.UploadMedia(creds, content, sanitizeFilename(filename), asset.MimeType)
		if err != nil {
			return "", err
		}
		body["id"] = mediaID
	case CategoryVoice:
		// Voice notes ride the audio field, by provider id, no extras.
		field = string(CategoryAudio)
		mediaID, err := p.graph.UploadMedia(creds, content, sanitizeFilename(filename), asset.MimeType)
		if err != nil {
			return "", err
		}
		body["id"] = mediaID
	default:
		field = string(CategoryDocument)
		body["link"] = asset.PublicURL
	}

	return p.graph.SendMessage(creds, map[string]any{
		"to":   toDial,
		"type": field,
		field:  body,
	})
}
