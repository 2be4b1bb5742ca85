package cmd

import (
	"github.com/cyqual-sec/aws-delete-default-vpc/awsauth"
	"github.com/cyqual-sec/aws-delete-default-vpc/vpc"
	"github.com/spf13/viper"
)

// runConfigFromViper turns the region, list and yolo settings into a run
// config. Exactly one of all, include and exclude must be set; this is
// checked here rather than by cobra so that the settings may also come from
// the environment or the config file.
func runConfigFromViper(v *viper.Viper) (vpc.Config, error) {
	all := v.GetBool("all")
	include := v.IsSet("include")
	exclude := v.IsSet("exclude")

	selected := 0
	for _, set := range []bool{all, include, exclude} {
		if set {
			selected++
		}
	}

	var filter vpc.RegionFilter
	switch {
	case selected == 0:
		return vpc.Config{}, &vpc.ConfigError{Reason: "one of --all, --include or --exclude is required"}
	case selected > 1:
		return vpc.Config{}, &vpc.ConfigError{Reason: "--all, --include and --exclude are mutually exclusive"}
	case all:
		filter = vpc.AllRegions()
	case include:
		filter = vpc.IncludeRegions(vpc.ParseRegionList(v.GetString("include"))...)
	case exclude:
		filter = vpc.ExcludeRegions(vpc.ParseRegionList(v.GetString("exclude"))...)
	}

	config := vpc.Config{
		Filter:     filter,
		ListOnly:   v.GetBool("list"),
		AutoAccept: v.GetBool("yolo"),
	}

	if err := config.Validate(); err != nil {
		return vpc.Config{}, err
	}

	return config, nil
}

func authConfigFromViper(v *viper.Viper) awsauth.AuthConfig {
	return awsauth.AuthConfig{
		Strategy:        v.GetString("aws-access-strategy"),
		AccessKeyID:     v.GetString("aws-access-key-id"),
		SecretAccessKey: v.GetString("aws-secret-access-key"),
		ExternalID:      v.GetString("aws-external-id"),
		TargetRoleARN:   v.GetString("aws-target-role-arn"),
		Profile:         v.GetString("profile"),
		BootstrapRegion: v.GetString("bootstrap-region"),
	}
}
