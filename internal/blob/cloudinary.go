package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/admin"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/samber/lo"
)

type Cloudinary struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinary(cloudName, apiKey, apiSecret string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}
	return &Cloudinary{cld: cld}, nil
}

func (c *Cloudinary) Upload(ctx context.Context, r io.Reader, folder string) (Object, error) {
	if folder == "" {
		folder = DefaultFolder
	}
	res, err := c.cld.Upload.Upload(ctx, r, uploader.UploadParams{Folder: folder, ResourceType: "auto"})
	if err != nil {
		return Object{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return Object{}, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return Object{URL: res.SecureURL, ExternalID: res.PublicID}, nil
}

// resourceTypes are searched in order on delete. Uploads are typed "auto", so an
// object may live under any of them and Cloudinary only finds it under the right one.
var resourceTypes = []api.AssetType{api.Image, api.Video, api.File}

// Delete fails with ErrObjectNotFound when no resource type holds externalID.
func (c *Cloudinary) Delete(ctx context.Context, externalID string) error {
	for _, rt := range resourceTypes {
		res, err := c.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: externalID, ResourceType: rt.String()})
		if err != nil {
			return fmt.Errorf("cloudinary destroy %s: %w", externalID, err)
		}
		if res.Error.Message != "" {
			return fmt.Errorf("cloudinary destroy %s: %s", externalID, res.Error.Message)
		}
		switch res.Result {
		case "ok":
			return nil
		case "not found":
			continue
		default:
			return fmt.Errorf("cloudinary destroy %s: result %q", externalID, res.Result)
		}
	}
	return fmt.Errorf("cloudinary destroy %s: %w", externalID, ErrObjectNotFound)
}

func (c *Cloudinary) DeleteMany(ctx context.Context, externalIDs []string) map[string]error {
	out := make(map[string]error, len(externalIDs))
	pending := lo.Uniq(externalIDs)
	for _, rt := range resourceTypes {
		if len(pending) == 0 {
			break
		}
		res, err := c.cld.Admin.DeleteAssets(ctx, admin.DeleteAssetsParams{AssetType: rt, PublicIDs: api.CldAPIArray(pending)})
		if err == nil && res.Error.Message != "" {
			err = errors.New(res.Error.Message)
		}
		if err != nil {
			for _, id := range pending {
				out[id] = fmt.Errorf("cloudinary delete %s assets: %w", rt, err)
			}
			return out
		}
		var missing []string
		for _, id := range pending {
			switch res.Deleted[id] {
			case "deleted":
				out[id] = nil
			case "not_found", "":
				missing = append(missing, id)
			default:
				out[id] = fmt.Errorf("cloudinary delete %s: %q", id, res.Deleted[id])
			}
		}
		pending = missing
	}
	for _, id := range pending {
		out[id] = fmt.Errorf("cloudinary delete %s: %w", id, ErrObjectNotFound)
	}
	return out
}

var _ Store = (*Cloudinary)(nil)
