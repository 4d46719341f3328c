package core

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"go.uber.org/zap"
)

// maxMetadataScan limits how much of an image is searched for an XMP packet
const maxMetadataScan = 8 << 20

var (
	xmpStart = []byte("<x:xmpmeta")
	xmpEnd   = []byte("</x:xmpmeta>")
)

// PictureInfo is the descriptive metadata of an image. Unknown values are
// left empty.
type PictureInfo struct {
	DateTime         string
	Camera           string
	Orientation      string
	LightSource      string
	ExposureTime     string
	SceneType        string
	ImageWidth       int
	ImageHeight      int
	GPSLatitude      string
	GPSLongitude     string
	ImageDescription string
}

// ReadPictureInfo extracts metadata from an image file. An embedded XMP
// packet takes precedence over EXIF. Failures are logged and produce an
// empty (or partial) record, never an error.
func ReadPictureInfo(path string) PictureInfo {
	f, err := os.Open(path)
	if err != nil {
		Debug("cannot open picture", zap.String("path", path), zap.Error(err))
		return PictureInfo{}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxMetadataScan))
	if err != nil {
		Debug("cannot read picture", zap.String("path", path), zap.Error(err))
		return PictureInfo{}
	}

	var info PictureInfo
	if xmp, ok := infoFromXMP(data); ok {
		info = xmp
	} else if ex, err := infoFromExif(bytes.NewReader(data)); err == nil {
		info = ex
	} else {
		Debug("no picture metadata", zap.String("path", path), zap.Error(err))
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		info.ImageWidth = cfg.Width
		info.ImageHeight = cfg.Height
	}
	return info
}

func cameraName(make, model string) string {
	make = strings.TrimSpace(make)
	model = strings.TrimSpace(model)
	if make == "" && model == "" {
		return ""
	}
	if model == "" {
		model = "-"
	}
	if make == "" {
		return model
	}
	return make + " " + model
}

// infoFromXMP looks for an XMP packet and reads the properties of its
// rdf:Description elements, both the attribute and the element forms.
func infoFromXMP(data []byte) (PictureInfo, bool) {
	start := bytes.Index(data, xmpStart)
	if start < 0 {
		return PictureInfo{}, false
	}
	end := bytes.Index(data[start:], xmpEnd)
	if end < 0 {
		return PictureInfo{}, false
	}
	packet := data[start : start+end+len(xmpEnd)]

	props, found := parseXMPProperties(packet)
	if !found {
		return PictureInfo{}, false
	}

	description := props["description"]
	if description == "" {
		description = props["ImageDescription"]
	}
	return PictureInfo{
		DateTime:         props["DateTimeOriginal"],
		Camera:           cameraName(props["Make"], props["Model"]),
		Orientation:      props["Orientation"],
		LightSource:      props["LightSource"],
		ExposureTime:     props["ExposureTime"],
		SceneType:        props["SceneType"],
		GPSLatitude:      props["GPSLatitude"],
		GPSLongitude:     props["GPSLongitude"],
		ImageDescription: description,
	}, true
}

// container elements of RDF values
var rdfContainers = map[string]bool{"Alt": true, "Bag": true, "Seq": true, "li": true}

func parseXMPProperties(packet []byte) (map[string]string, bool) {
	props := make(map[string]string)
	found := false
	var stack []string

	dec := xml.NewDecoder(bytes.NewReader(packet))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			stack = append(stack, t.Name.Local)
			if t.Name.Local != "Description" {
				continue
			}
			found = true
			for _, attr := range t.Attr {
				if _, set := props[attr.Name.Local]; !set && attr.Value != "" {
					props[attr.Name.Local] = attr.Value
				}
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			value := strings.TrimSpace(string(t))
			if value == "" {
				continue
			}
			for i := len(stack) - 1; i >= 0; i-- {
				if rdfContainers[stack[i]] {
					continue
				}
				if _, set := props[stack[i]]; !set {
					props[stack[i]] = value
				}
				break
			}
		}
	}
	return props, found
}

func infoFromExif(r io.Reader) (PictureInfo, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return PictureInfo{}, err
	}

	info := PictureInfo{
		ImageDescription: getTagString(x, exif.ImageDescription),
		DateTime:         getTagString(x, exif.DateTime),
		Camera:           cameraName(getTagString(x, exif.Make), getTagString(x, exif.Model)),
		Orientation:      getTagString(x, exif.Orientation),
		LightSource:      getTagString(x, exif.LightSource),
		SceneType:        getTagString(x, exif.SceneType),
	}

	if et, err := x.Get(exif.ExposureTime); err == nil {
		if num, denom, err := et.Rat2(0); err == nil && denom != 0 {
			if denom == 1 {
				info.ExposureTime = fmt.Sprintf("%ds", num)
			} else {
				info.ExposureTime = fmt.Sprintf("%d/%d", num, denom)
			}
		}
	}

	if lat, long, err := x.LatLong(); err == nil && !math.IsNaN(lat) && !math.IsNaN(long) {
		info.GPSLatitude = fmt.Sprintf("%.6f", lat)
		info.GPSLongitude = fmt.Sprintf("%.6f", long)
	}
	return info, nil
}

func getTagString(x *exif.Exif, f exif.FieldName) string {
	tag, err := x.Get(f)
	if err != nil {
		return ""
	}
	if tag.Format() == tiff.StringVal {
		s, _ := tag.StringVal()
		return strings.TrimSpace(strings.TrimRight(s, "\x00"))
	}
	return tag.String()
}
