package heatmap

// Container is one named CSS selector group for ad surfaces.
type Container struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
}

// Signatures is the argument of the in-page ad detector.
type Signatures struct {
	Containers    []Container `json:"containers"`
	IframeSources []string    `json:"iframeSources"`
	CTAPhrases    []string    `json:"ctaPhrases"`
	MinSize       int         `json:"minSize"`
	MaxElements   int         `json:"maxElements"`
}

// DefaultSignatures returns the built-in signature library.
func DefaultSignatures() Signatures {
	return Signatures{
		Containers: []Container{
			{
				Name: "ad-slot",
				Selector: `[id^="div-gpt-ad"], [id^="google_ads_iframe"], ins.adsbygoogle, [data-ad-slot], ` +
					`[data-google-query-id], [data-ad-unit], [data-adunit], [data-ad-client]`,
			},
			{
				Name: "ad-container",
				Selector: `.advertisement, .ad-container, .ad-wrapper, .ad-slot, .ad-unit, .adunit, .adsbox, ` +
					`.ad-banner, .banner-ad, [class*="ad-placement"], [id^="ad-slot"], [id^="ad_unit"], ` +
					`[aria-label="Advertisement"], [aria-label="advertisement"]`,
			},
			{
				Name: "network-prefix",
				Selector: `[id^="taboola-"], .trc_rbox_container, [id^="outbrain_widget"], .OUTBRAIN, ` +
					`[id^="rcjsload"], [id^="mgid_"], [class*="mgbox"], [id^="zergnet-widget"], ` +
					`[id^="ezoic-pub-ad"], .ezoic-ad, [id^="AdThrive_"], [class*="adthrive-ad"], ` +
					`[class*="mv-ad-box"], [id^="amzn-assoc-ad"], [id^="criteo_"], [id^="teads"], ` +
					`[class*="connatix"], [id^="primis"]`,
			},
			{
				Name: "sticky",
				Selector: `[class*="sticky-ad"], [id*="sticky-ad"], [class*="anchor-ad"], ` +
					`[class*="adhesion"], [id*="adhesion"], [class*="sticky_footer_ad"]`,
			},
			{
				Name:     "sponsored",
				Selector: `[class*="sponsored-content"], [class*="promoted-content"], [data-sponsored], [data-native-ad]`,
			},
		},
		IframeSources: []string{
			"doubleclick.net",
			"googlesyndication.com",
			"google_ads_iframe",
			"adnxs.com",
			"amazon-adsystem.com",
			"taboola.com",
			"outbrain.com",
			"criteo",
			"rubiconproject.com",
			"pubmatic.com",
			"openx.net",
			"mgid.com",
			"revcontent.com",
			"adform.net",
			"teads.tv",
			"smartadserver.com",
			"media.net",
			"3lift.com",
		},
		CTAPhrases: []string{
			"download now",
			"start download",
			"click here to download",
			"free download",
			"install now",
			"update required",
			"your computer is infected",
			"virus detected",
			"your pc may be at risk",
			"you have won",
			"claim your prize",
			"congratulations! you",
		},
		MinSize:     20,
		MaxElements: 500,
	}
}
