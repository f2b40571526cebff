package s3

import (
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 Storage Tier Constants
const (
	TierStandard          = "STANDARD"
	TierStandardIA        = "STANDARD_IA"
	TierOneZoneIA         = "ONEZONE_IA"
	TierReducedRedundancy = "REDUCED_REDUNDANCY"
	TierGlacierIR         = "GLACIER_IR"
	TierGlacier           = "GLACIER"
	TierDeepArchive       = "DEEP_ARCHIVE"
	TierIntelligent       = "INTELLIGENT_TIERING"
)

var storageClasses = map[string]types.StorageClass{
	TierStandard:          types.StorageClassStandard,
	TierStandardIA:        types.StorageClassStandardIa,
	TierOneZoneIA:         types.StorageClassOnezoneIa,
	TierReducedRedundancy: types.StorageClassReducedRedundancy,
	TierGlacierIR:         types.StorageClassGlacierIr,
	TierGlacier:           types.StorageClassGlacier,
	TierDeepArchive:       types.StorageClassDeepArchive,
	TierIntelligent:       types.StorageClassIntelligentTiering,
}

// IsValidTier reports whether tier names a known storage class.
func IsValidTier(tier string) bool {
	_, ok := storageClasses[tier]
	return ok
}

// Tiers returns the known storage class names in sorted order.
func Tiers() []string {
	names := make([]string, 0, len(storageClasses))
	for name := range storageClasses {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// convertTierToStorageClass converts a tier name to the SDK storage class.
// An empty tier leaves the choice to the bucket default.
func convertTierToStorageClass(tier string) types.StorageClass {
	if tier == "" {
		return ""
	}
	if sc, ok := storageClasses[tier]; ok {
		return sc
	}
	return types.StorageClassStandard
}

// storageClassName normalizes a reported storage class. S3 omits the header
// for STANDARD objects.
func storageClassName(sc string) string {
	if sc == "" {
		return TierStandard
	}
	return sc
}
