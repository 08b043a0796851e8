package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"

	"github.com/waterinstitute/metget/internal/log"
	"github.com/waterinstitute/metget/internal/sources"
)

// GribSubsetter pulls individual GRIB2 messages out of the upstream NOAA
// buckets by byte range, guided by the .idx sidecar next to each file.
// Files without a sidecar fall back to a full download.
type GribSubsetter struct {
	api    S3API
	bucket string
}

// NewGribSubsetter builds a subsetter for one upstream bucket.
func NewGribSubsetter(api S3API, bucket string) *GribSubsetter {
	return &GribSubsetter{api: api, bucket: bucket}
}

// gribRange is one message's byte span. An end of -1 runs to EOF.
type gribRange struct {
	variable sources.Variable
	start    int64
	end      int64
}

// parseS3URL splits s3://bucket/key into its parts.
func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// parseInventory matches the wanted variables against idx lines of the
// form "n:offset:date:var:level:forecast". A line matches when it
// contains the variable's inventory long name.
func parseInventory(lines []string, wanted []sources.Variable) ([]gribRange, error) {
	var clean []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			clean = append(clean, l)
		}
	}

	offset := func(line string) (int64, error) {
		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			return 0, fmt.Errorf("malformed inventory line: %s", line)
		}
		return strconv.ParseInt(parts[1], 10, 64)
	}

	var out []gribRange
	for _, v := range wanted {
		for i, line := range clean {
			if !strings.Contains(line, v.LongName) {
				continue
			}
			start, err := offset(line)
			if err != nil {
				return nil, err
			}
			end := int64(-1)
			if i+1 < len(clean) {
				if end, err = offset(clean[i+1]); err != nil {
					return nil, err
				}
			}
			out = append(out, gribRange{variable: v, start: start, end: end})
			break
		}
	}
	return out, nil
}

// Download fetches the file behind an s3:// URL into localPath, keeping
// only the messages the variable selection needs when the sidecar allows
// it. The returned flag reports whether the file was subset.
func (g *GribSubsetter) Download(ctx context.Context, rawURL, localPath string, svc *sources.Service, variable sources.VariableType) (bool, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return false, err
	}
	if bucket != g.bucket {
		return false, fmt.Errorf("bucket %s does not match expected bucket %s", bucket, g.bucket)
	}

	if _, err := os.Stat(localPath); err == nil {
		log.Warnf("file %s already exists, removing", localPath)
		os.Remove(localPath)
	}

	inventory, err := g.fetchInventory(ctx, key, svc.SelectedVariables(variable))
	if err != nil {
		return false, err
	}
	if inventory == nil {
		log.Infof("no inventory sidecar for %s, downloading whole file", rawURL)
		return false, g.fetchWholeFile(ctx, key, localPath)
	}
	if len(inventory) < len(svc.SelectedVariables(variable)) {
		return false, fmt.Errorf("inventory for %s is missing requested fields", rawURL)
	}

	f, err := os.Create(localPath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	for _, r := range inventory {
		byteRange := fmt.Sprintf("bytes=%d-", r.start)
		if r.end > 0 {
			byteRange = fmt.Sprintf("bytes=%d-%d", r.start, r.end-1)
		}
		body, err := g.getWithRetry(ctx, key, byteRange)
		if err != nil {
			return false, err
		}
		_, err = io.Copy(f, body)
		body.Close()
		if err != nil {
			return false, fmt.Errorf("writing %s: %w", localPath, err)
		}
	}
	return true, nil
}

func (g *GribSubsetter) fetchInventory(ctx context.Context, key string, wanted []sources.Variable) ([]gribRange, error) {
	out, err := g.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key + ".idx"),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching inventory for %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return parseInventory(strings.Split(string(data), "\n"), wanted)
}

func (g *GribSubsetter) fetchWholeFile(ctx context.Context, key, localPath string) error {
	body, err := g.getWithRetry(ctx, key, "")
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// getWithRetry fetches an object, waiting out the window where the
// upstream has published the inventory but not yet the file itself.
func (g *GribSubsetter) getWithRetry(ctx context.Context, key, byteRange string) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}
	if byteRange != "" {
		in.Range = aws.String(byteRange)
	}

	var body io.ReadCloser
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Second), 4), ctx)
	err := backoff.Retry(func() error {
		out, err := g.api.GetObject(ctx, in)
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				return err
			}
			return backoff.Permanent(err)
		}
		body = out.Body
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", g.bucket, key, err)
	}
	return body, nil
}
