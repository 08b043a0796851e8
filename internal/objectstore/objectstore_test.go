package objectstore

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/waterinstitute/metget/internal/sources"
)

type fakeS3 struct {
	headOut    *s3.HeadObjectOutput
	headErr    error
	restored   []string
	getObjects map[string]string
	listKeys   []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.getObjects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: noopCloser{strings.NewReader(body)}}, nil
}

func (f *fakeS3) PutObject(_ context.Context, _ *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return f.headOut, f.headErr
}

func (f *fakeS3) RestoreObject(_ context.Context, in *s3.RestoreObjectInput, _ ...func(*s3.Options)) (*s3.RestoreObjectOutput, error) {
	f.restored = append(f.restored, *in.Key)
	return &s3.RestoreObjectOutput{}, nil
}

// ListObjectsV2 pages one key at a time to exercise continuation handling.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range f.listKeys {
			if k == *in.ContinuationToken {
				start = i + 1
				break
			}
		}
	}
	var matched []string
	for _, k := range f.listKeys[start:] {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			matched = append(matched, k)
		}
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(matched) > 0 {
		out.Contents = []types.Object{{Key: aws.String(matched[0])}}
		if len(matched) > 1 {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(matched[0])
		}
	}
	return out, nil
}

type noopCloser struct{ *strings.Reader }

func (noopCloser) Close() error { return nil }

func TestParseS3URL(t *testing.T) {
	bucket, key, err := parseS3URL("s3://noaa-gfs-bdp-pds/gfs.20230801/00/atmos/gfs.t00z.pgrb2.0p25.f006")
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "noaa-gfs-bdp-pds" {
		t.Errorf("bucket = %q", bucket)
	}
	if key != "gfs.20230801/00/atmos/gfs.t00z.pgrb2.0p25.f006" {
		t.Errorf("key = %q", key)
	}

	if _, _, err := parseS3URL("https://example.com/file"); err == nil {
		t.Error("expected an error for a non-s3 url")
	}
}

const gfsIdxFixture = `1:0:d=2023080100:PRMSL:mean sea level:6 hour fcst:
2:990000:d=2023080100:CLMR:1 hybrid level:6 hour fcst:
3:1500000:d=2023080100:UGRD:10 m above ground:6 hour fcst:
4:2100000:d=2023080100:VGRD:10 m above ground:6 hour fcst:
5:2700000:d=2023080100:TMP:30-0 mb above ground:6 hour fcst:
`

func TestParseInventory(t *testing.T) {
	svc, err := sources.LookupService("gfs-ncep")
	if err != nil {
		t.Fatal(err)
	}
	wanted := svc.SelectedVariables(sources.VarWindPressure)
	if len(wanted) != 3 {
		t.Fatalf("wind_pressure selects %d variables, want 3", len(wanted))
	}

	ranges, err := parseInventory(strings.Split(gfsIdxFixture, "\n"), wanted)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 3 {
		t.Fatalf("got %d ranges, want 3", len(ranges))
	}

	byType := map[sources.MetDataType]gribRange{}
	for _, r := range ranges {
		byType[r.variable.Type] = r
	}

	u := byType[sources.WindU]
	if u.start != 1500000 || u.end != 2100000 {
		t.Errorf("u range = [%d, %d)", u.start, u.end)
	}
	p := byType[sources.Pressure]
	if p.start != 0 || p.end != 990000 {
		t.Errorf("pressure range = [%d, %d)", p.start, p.end)
	}
}

func TestParseInventoryLastMessageRunsToEOF(t *testing.T) {
	svc, _ := sources.LookupService("gfs-ncep")
	wanted := svc.SelectedVariables(sources.VarTemperature)

	ranges, err := parseInventory(strings.Split(gfsIdxFixture, "\n"), wanted)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranges) != 1 {
		t.Fatalf("got %d ranges, want 1", len(ranges))
	}
	if ranges[0].start != 2700000 || ranges[0].end != -1 {
		t.Errorf("temperature range = [%d, %d)", ranges[0].start, ranges[0].end)
	}
}

func TestExists(t *testing.T) {
	store := NewStoreWithAPI(&fakeS3{headOut: &s3.HeadObjectOutput{}}, "bucket")
	ok, err := store.Exists(context.Background(), "some/key")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("object should exist")
	}

	store = NewStoreWithAPI(&fakeS3{headErr: &types.NotFound{}}, "bucket")
	ok, err = store.Exists(context.Background(), "some/key")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("object should not exist")
	}
}

func TestListFollowsPagination(t *testing.T) {
	api := &fakeS3{listKeys: []string{
		"gfs_ncep/2023/08/01/a.grb2",
		"gfs_ncep/2023/08/01/b.grb2",
		"gfs_ncep/2023/08/02/c.grb2",
		"nam_ncep/2023/08/01/d.grb2",
	}}
	store := NewStoreWithAPI(api, "bucket")

	keys, err := store.List(context.Background(), "gfs_ncep/2023/08/01/")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"gfs_ncep/2023/08/01/a.grb2", "gfs_ncep/2023/08/01/b.grb2"}
	if len(keys) != len(want) {
		t.Fatalf("listed %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("listed %v, want %v", keys, want)
		}
	}
}

func TestArchiveStatus(t *testing.T) {
	cases := []struct {
		name string
		head *s3.HeadObjectOutput
		want ArchiveState
	}{
		{"live", &s3.HeadObjectOutput{}, StateAvailable},
		{"archived", &s3.HeadObjectOutput{ArchiveStatus: types.ArchiveStatusArchiveAccess}, StateArchived},
		{"glacier class", &s3.HeadObjectOutput{StorageClass: types.StorageClassGlacier}, StateArchived},
		{"restoring", &s3.HeadObjectOutput{Restore: aws.String(`ongoing-request="true"`)}, StateRestoring},
		{"restored", &s3.HeadObjectOutput{Restore: aws.String(`ongoing-request="false", expiry-date="Fri, 11 Aug 2023 00:00:00 GMT"`)}, StateAvailable},
	}
	for _, c := range cases {
		store := NewStoreWithAPI(&fakeS3{headOut: c.head}, "bucket")
		got, err := store.ArchiveStatus(context.Background(), "key")
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Errorf("%s: state = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestCheckArchiveInitiateRestore(t *testing.T) {
	api := &fakeS3{headOut: &s3.HeadObjectOutput{ArchiveStatus: types.ArchiveStatusArchiveAccess}}
	store := NewStoreWithAPI(api, "bucket")

	state, err := store.CheckArchiveInitiateRestore(context.Background(), "cold/key")
	if err != nil {
		t.Fatal(err)
	}
	if state != StateRestoring {
		t.Errorf("state = %v, want restoring", state)
	}
	if len(api.restored) != 1 || api.restored[0] != "cold/key" {
		t.Errorf("restore calls = %v", api.restored)
	}
}
