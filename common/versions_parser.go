package common

import (
	"encoding/hex"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Version describes the local and online version of a product.
// A product colum with the product code will be present inside the
// local .build.info file if "shared storage" is enabled. (https://wowdev.wiki/TACT#Shared_storage)
type Version struct {
	Region          string
	BuildConfigHash []byte
	CDNConfigHash   []byte
	Name            string // i.e. A.B.C.XXXXX
	Active          bool

	ProductCode string // Optional
}

// ParseBuildInfo parses the .build.info file of an install directory.
func ParseBuildInfo(r io.Reader) ([]Version, error) {
	csv, err := ParseCSV(r, "Branch", "Build Key", "CDN Key", "Version")
	if err != nil {
		return nil, err
	}
	versions := []Version{}
	for _, row := range csv {
		v, err := newVersion(row["Branch"], row["Build Key"], row["CDN Key"], row["Version"])
		if err != nil {
			return nil, err
		}
		v.ProductCode = row["Product"]
		v.Active = row["Active"] != "0"
		versions = append(versions, v)
	}
	return versions, nil
}

// ParseVersions parses a saved copy of the versions file served at
// http://(Region).patch.battle.net:1119/(ProgramCode)/versions
func ParseVersions(r io.Reader) ([]Version, error) {
	csv, err := ParseCSV(r, "Region", "BuildConfig", "CDNConfig", "VersionsName")
	if err != nil {
		return nil, err
	}
	versions := []Version{}
	for _, row := range csv {
		v, err := newVersion(row["Region"], row["BuildConfig"], row["CDNConfig"], row["VersionsName"])
		if err != nil {
			return nil, err
		}
		v.Active = true
		versions = append(versions, v)
	}
	return versions, nil
}

func newVersion(region, buildConfig, cdnConfig, name string) (Version, error) {
	buildConfigHash, err := hex.DecodeString(strings.TrimSpace(buildConfig))
	if err != nil {
		return Version{}, errors.Wrapf(ErrFormat, "invalid build config hash %q", buildConfig)
	}
	cdnConfigHash, err := hex.DecodeString(strings.TrimSpace(cdnConfig))
	if err != nil {
		return Version{}, errors.Wrapf(ErrFormat, "invalid cdn config hash %q", cdnConfig)
	}
	return Version{
		Region:          region,
		BuildConfigHash: buildConfigHash,
		CDNConfigHash:   cdnConfigHash,
		Name:            name,
	}, nil
}
