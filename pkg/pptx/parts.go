package pptx

import (
	"bytes"
	"encoding/xml"
	"text/template"
)

const (
	nsA   = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"`
	nsR   = `xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	nsP   = `xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
	relNS = `http://schemas.openxmlformats.org/officeDocument/2006/relationships`
	xmlPI = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
)

var funcs = template.FuncMap{
	"add": func(a, b int) int { return a + b },
	"xml": func(s string) string {
		var buf bytes.Buffer
		xml.EscapeText(&buf, []byte(s))
		return buf.String()
	},
}

func part(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(xmlPI + text))
}

var contentTypesTmpl = part("content-types", `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`+
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`+
	`<Default Extension="xml" ContentType="application/xml"/>`+
	`{{range .Extensions}}<Default Extension="{{.Ext}}" ContentType="{{.MIME}}"/>{{end}}`+
	`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`+
	`<Override PartName="/ppt/presProps.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presProps+xml"/>`+
	`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`+
	`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`+
	`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`+
	`{{range .Slides}}<Override PartName="/ppt/slides/slide{{.Index}}.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>{{end}}`+
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`+
	`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`+
	`</Types>`)

var rootRelsTmpl = part("root-rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
	`<Relationship Id="rId1" Type="`+relNS+`/officeDocument" Target="ppt/presentation.xml"/>`+
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>`+
	`<Relationship Id="rId3" Type="`+relNS+`/extended-properties" Target="docProps/app.xml"/>`+
	`</Relationships>`)

var coreTmpl = part("core", `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">`+
	`<dc:title>{{xml .Title}}</dc:title>`+
	`</cp:coreProperties>`)

var appTmpl = part("app", `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties">`+
	`<Application>folio</Application>`+
	`<Slides>{{len .Slides}}</Slides>`+
	`</Properties>`)

var presentationTmpl = part("presentation", `<p:presentation `+nsA+` `+nsR+` `+nsP+` saveSubsetFonts="1">`+
	`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`+
	`<p:sldIdLst>{{range .Slides}}<p:sldId id="{{add .Index 255}}" r:id="{{.RelID}}"/>{{end}}</p:sldIdLst>`+
	`<p:sldSz cx="{{.Width}}" cy="{{.Height}}"/>`+
	`<p:notesSz cx="6858000" cy="9144000"/>`+
	`</p:presentation>`)

var presentationRelsTmpl = part("presentation-rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
	`<Relationship Id="rId1" Type="`+relNS+`/slideMaster" Target="slideMasters/slideMaster1.xml"/>`+
	`<Relationship Id="rId2" Type="`+relNS+`/theme" Target="theme/theme1.xml"/>`+
	`{{range .Slides}}<Relationship Id="{{.RelID}}" Type="`+relNS+`/slide" Target="slides/slide{{.Index}}.xml"/>{{end}}`+
	`<Relationship Id="rIdProps" Type="`+relNS+`/presProps" Target="presProps.xml"/>`+
	`</Relationships>`)

var presPropsTmpl = part("pres-props", `<p:presentationPr `+nsA+` `+nsR+` `+nsP+`/>`)

const emptyTree = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
	`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`

var masterTmpl = part("master", `<p:sldMaster `+nsA+` `+nsR+` `+nsP+`>`+
	`<p:cSld><p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg><p:spTree>`+emptyTree+`</p:spTree></p:cSld>`+
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>`+
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>`+
	`<p:txStyles><p:titleStyle/><p:bodyStyle/><p:otherStyle/></p:txStyles>`+
	`</p:sldMaster>`)

var masterRelsTmpl = part("master-rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
	`<Relationship Id="rId1" Type="`+relNS+`/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>`+
	`<Relationship Id="rId2" Type="`+relNS+`/theme" Target="../theme/theme1.xml"/>`+
	`</Relationships>`)

var layoutTmpl = part("layout", `<p:sldLayout `+nsA+` `+nsR+` `+nsP+` type="blank" preserve="1">`+
	`<p:cSld name="Blank"><p:spTree>`+emptyTree+`</p:spTree></p:cSld>`+
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`+
	`</p:sldLayout>`)

var layoutRelsTmpl = part("layout-rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
	`<Relationship Id="rId1" Type="`+relNS+`/slideMaster" Target="../slideMasters/slideMaster1.xml"/>`+
	`</Relationships>`)

var slideTmpl = part("slide", `<p:sld `+nsA+` `+nsR+` `+nsP+`>`+
	`<p:cSld><p:spTree>`+emptyTree+
	`<p:pic>`+
	`<p:nvPicPr><p:cNvPr id="2" name="Picture 1" descr="{{xml .Slide.Name}}"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`+
	`<p:blipFill><a:blip r:embed="rId2"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`+
	`<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="{{.Width}}" cy="{{.Height}}"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`+
	`</p:pic>`+
	`</p:spTree></p:cSld>`+
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`+
	`</p:sld>`)

var slideRelsTmpl = part("slide-rels", `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
	`<Relationship Id="rId1" Type="`+relNS+`/slideLayout" Target="../slideLayouts/slideLayout1.xml"/>`+
	`<Relationship Id="rId2" Type="`+relNS+`/image" Target="../media/{{.Slide.Media}}"/>`+
	`</Relationships>`)

var themeTmpl = part("theme", `<a:theme `+nsA+` name="Folio">`+
	`<a:themeElements>`+
	`<a:clrScheme name="Folio">`+
	`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1>`+
	`<a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>`+
	`<a:dk2><a:srgbClr val="1F497D"/></a:dk2>`+
	`<a:lt2><a:srgbClr val="EEECE1"/></a:lt2>`+
	`<a:accent1><a:srgbClr val="4F81BD"/></a:accent1>`+
	`<a:accent2><a:srgbClr val="C0504D"/></a:accent2>`+
	`<a:accent3><a:srgbClr val="9BBB59"/></a:accent3>`+
	`<a:accent4><a:srgbClr val="8064A2"/></a:accent4>`+
	`<a:accent5><a:srgbClr val="4BACC6"/></a:accent5>`+
	`<a:accent6><a:srgbClr val="F79646"/></a:accent6>`+
	`<a:hlink><a:srgbClr val="0000FF"/></a:hlink>`+
	`<a:folHlink><a:srgbClr val="800080"/></a:folHlink>`+
	`</a:clrScheme>`+
	`<a:fontScheme name="Folio">`+
	`<a:majorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>`+
	`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>`+
	`</a:fontScheme>`+
	`<a:fmtScheme name="Folio">`+
	`<a:fillStyleLst>`+
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`+
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`+
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`+
	`</a:fillStyleLst>`+
	`<a:lnStyleLst>`+
	`<a:ln w="9525"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`+
	`<a:ln w="25400"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`+
	`<a:ln w="38100"><a:solidFill><a:schemeClr val="phClr"/></a:solidFill></a:ln>`+
	`</a:lnStyleLst>`+
	`<a:effectStyleLst>`+
	`<a:effectStyle><a:effectLst/></a:effectStyle>`+
	`<a:effectStyle><a:effectLst/></a:effectStyle>`+
	`<a:effectStyle><a:effectLst/></a:effectStyle>`+
	`</a:effectStyleLst>`+
	`<a:bgFillStyleLst>`+
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`+
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`+
	`<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`+
	`</a:bgFillStyleLst>`+
	`</a:fmtScheme>`+
	`</a:themeElements>`+
	`</a:theme>`)
